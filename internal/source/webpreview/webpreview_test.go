package webpreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/source"
)

func post(channel string, id int, text, views, date, photo string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="tgme_widget_message" data-post="%s/%d">`, channel, id)
	if photo != "" {
		fmt.Fprintf(&b, `<a class="tgme_widget_message_photo_wrap" style="width:800px;background-image:url('%s')"></a>`, photo)
	}
	if text != "" {
		fmt.Fprintf(&b, `<div class="tgme_widget_message_text">%s</div>`, text)
	}
	fmt.Fprintf(&b, `<span class="tgme_widget_message_views">%s</span>`, views)
	fmt.Fprintf(&b, `<a class="tgme_widget_message_date"><time datetime="%s"></time></a></div>`, date)
	return b.String()
}

func page(posts ...string) string {
	return `<html><body><div class="tgme_channel_info"></div>` + strings.Join(posts, "") + `</body></html>`
}

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/s", source.NewFetcher(srv.Client(), "test-agent", time.Second, 1))
}

func TestResolve(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s/known":
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			fmt.Fprint(w, page())
		case "/s/private":
			fmt.Fprint(w, `<html><body><div class="tgme_page"></div></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, c.Resolve(context.Background(), "known"))
	assert.ErrorIs(t, c.Resolve(context.Background(), "private"), domain.ErrSourceUnavailable)
	assert.ErrorIs(t, c.Resolve(context.Background(), "missing"), domain.ErrSourceUnavailable)
}

func TestResolve_RateLimited(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Resolve(context.Background(), "busy")
	var rl *domain.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "busy", rl.Channel)
	assert.Equal(t, 7*time.Second, rl.Wait)
}

func TestMessages_PaginatesNewestFirst(t *testing.T) {
	var befores []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		before := r.URL.Query().Get("before")
		befores = append(befores, before)
		switch before {
		case "":
			fmt.Fprint(w, page(
				post("chan", 11, "eleven", "1.2K", "2026-01-18T10:30:00+00:00", "https://cdn.example/11.jpg"),
				post("chan", 12, "twelve<br>line", "845", "2026-01-18T11:00:00+03:00", ""),
			))
		case "11":
			fmt.Fprint(w, page(
				post("chan", 9, "nine", "3M", "2026-01-17T09:00:00+00:00", ""),
				post("chan", 10, "", "10", "2026-01-17T10:00:00+00:00", ""),
			))
		default:
			fmt.Fprint(w, page())
		}
	})

	var got []source.Message
	for m, err := range c.Messages(context.Background(), "chan", 3) {
		require.NoError(t, err)
		got = append(got, m)
	}

	require.Len(t, got, 3)
	assert.Equal(t, []int64{12, 11, 10}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "twelve\nline", got[0].Text)
	assert.Equal(t, int64(845), got[0].Views)
	assert.Equal(t, time.Date(2026, 1, 18, 8, 0, 0, 0, time.UTC), got[0].PostedAt)
	assert.False(t, got[0].HasAttachment)

	assert.Equal(t, int64(1200), got[1].Views)
	assert.True(t, got[1].HasAttachment)
	assert.Equal(t, "https://cdn.example/11.jpg", got[1].AttachmentURL)

	assert.Empty(t, got[2].Text)
	assert.Equal(t, []string{"", "11"}, befores)
}

func TestMessages_StopsWhenChannelExhausted(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("before") == "" {
			fmt.Fprint(w, page(post("chan", 5, "five", "1", "2026-01-18T10:30:00Z", "")))
			return
		}
		fmt.Fprint(w, page())
	})

	n := 0
	for _, err := range c.Messages(context.Background(), "chan", 50) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestMessages_ErrorEndsSequence(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	var errs []error
	for _, err := range c.Messages(context.Background(), "gone", 10) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrSourceUnavailable)
}

func TestFetchAttachment(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	})

	_, err := c.FetchAttachment(context.Background(), source.Message{Channel: "chan", ID: 1})
	assert.Error(t, err)

	data, err := c.FetchAttachment(context.Background(), source.Message{Channel: "chan", ID: 1, AttachmentURL: c.baseURL + "/photo.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestParseCount(t *testing.T) {
	tests := map[string]int64{
		"":      0,
		"845":   845,
		"1.2K":  1200,
		"12.5k": 12500,
		"3M":    3000000,
		"1,024": 1024,
		"n/a":   0,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseCount(in), in)
	}
}
