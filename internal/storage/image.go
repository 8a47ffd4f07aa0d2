package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // GIF decode support
	"image/jpeg"
	_ "image/png" // PNG decode support

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support
)

// NormalizeJPEG decodes a JPEG, PNG, GIF or WebP payload and re-encodes it as
// JPEG, scaling down to maxWidth while keeping the aspect ratio. A maxWidth of
// zero disables scaling.
func NormalizeJPEG(data []byte, maxWidth, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var src image.Image = img
	if maxWidth > 0 && width > maxWidth {
		newHeight := int(float64(height) * float64(maxWidth) / float64(width))
		if newHeight < 1 {
			newHeight = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode attachment: %w", err)
	}
	return buf.Bytes(), nil
}
