// Package source defines the contract between the collector and the
// external systems that publish channel messages.
package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/pkg/httpretry"
)

// DefaultRateLimitWait is used when a throttled response carries no
// usable Retry-After header.
const DefaultRateLimitWait = 30 * time.Second

// maxBodyBytes bounds a single page, feed or attachment download.
const maxBodyBytes = 16 << 20

// Message is one channel post as the source reports it.
type Message struct {
	ID            int64
	Channel       string
	PostedAt      time.Time // zero when the source gives no usable date
	Text          string
	Views         int64
	Forwards      int64
	HasAttachment bool
	AttachmentURL string
}

// Source produces channel messages.
//
// Messages yields up to limit messages newest first. The sequence is lazy
// and can be ranged over once; a non-nil error ends it.
type Source interface {
	Resolve(ctx context.Context, channel string) error
	Messages(ctx context.Context, channel string, limit int) iter.Seq2[Message, error]
	FetchAttachment(ctx context.Context, msg Message) ([]byte, error)
}

// Fetcher issues GET requests and maps source HTTP statuses onto the
// domain error taxonomy.
type Fetcher struct {
	client    httpretry.HTTPDoer
	userAgent string
}

// NewFetcher wraps client. A nil client gets a retrying client with the
// given timeout.
func NewFetcher(client httpretry.HTTPDoer, userAgent string, timeout time.Duration, maxRetries int) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = httpretry.NewRetryClient(&http.Client{Timeout: timeout}, maxRetries)
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Get fetches url on behalf of channel. A 404 becomes
// domain.ErrSourceUnavailable and a 429 a *domain.RateLimitError.
func (f *Fetcher) Get(ctx context.Context, channel, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: %w", channel, domain.ErrSourceUnavailable)
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, &domain.RateLimitError{Channel: channel, Wait: httpretry.RetryAfter(resp, DefaultRateLimitWait)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
