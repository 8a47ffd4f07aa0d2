// Package webpreview reads public channels through their web preview pages
// (https://t.me/s/<channel>), which list recent posts without a login.
package webpreview

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/source"
)

var backgroundURL = regexp.MustCompile(`background-image:\s*url\(['"]?([^'")]+)['"]?\)`)

// Client is a source.Source backed by preview pages.
type Client struct {
	baseURL string
	fetcher *source.Fetcher
}

// New creates a client rooted at baseURL (for example "https://t.me/s").
func New(baseURL string, fetcher *source.Fetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

func (c *Client) pageURL(channel string, before int64) string {
	u := c.baseURL + "/" + url.PathEscape(channel)
	if before > 0 {
		u += "?before=" + strconv.FormatInt(before, 10)
	}
	return u
}

func (c *Client) page(ctx context.Context, channel string, before int64) (*goquery.Document, error) {
	body, err := c.fetcher.Get(ctx, channel, c.pageURL(channel, before))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse preview page for %s: %w", channel, err)
	}
	return doc, nil
}

// Resolve checks that the channel has a public preview. Private or unknown
// channels render a page without channel info.
func (c *Client) Resolve(ctx context.Context, channel string) error {
	doc, err := c.page(ctx, channel, 0)
	if err != nil {
		return err
	}
	if doc.Find(".tgme_channel_info").Length() == 0 {
		return fmt.Errorf("%s has no public preview: %w", channel, domain.ErrSourceUnavailable)
	}
	return nil
}

// Messages pages backwards through the preview with ?before=<id>.
func (c *Client) Messages(ctx context.Context, channel string, limit int) iter.Seq2[source.Message, error] {
	return func(yield func(source.Message, error) bool) {
		var before int64
		yielded := 0
		for yielded < limit {
			doc, err := c.page(ctx, channel, before)
			if err != nil {
				yield(source.Message{}, err)
				return
			}

			msgs := parsePage(doc, channel)
			if len(msgs) == 0 {
				return
			}
			sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })

			for _, m := range msgs {
				if before > 0 && m.ID >= before {
					continue
				}
				if !yield(m, nil) {
					return
				}
				yielded++
				if yielded >= limit {
					return
				}
			}

			oldest := msgs[len(msgs)-1].ID
			if oldest <= 1 || (before > 0 && oldest >= before) {
				return
			}
			before = oldest
		}
	}
}

// FetchAttachment downloads the photo of msg.
func (c *Client) FetchAttachment(ctx context.Context, msg source.Message) ([]byte, error) {
	if msg.AttachmentURL == "" {
		return nil, fmt.Errorf("message %s/%d has no attachment url", msg.Channel, msg.ID)
	}
	return c.fetcher.Get(ctx, msg.Channel, msg.AttachmentURL)
}

func parsePage(doc *goquery.Document, channel string) []source.Message {
	var msgs []source.Message
	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, s *goquery.Selection) {
		post, _ := s.Attr("data-post")
		id, ok := postID(post)
		if !ok {
			return
		}

		m := source.Message{ID: id, Channel: channel}

		textSel := s.Find(".tgme_widget_message_text").First()
		textSel.Find("br").ReplaceWithHtml("\n")
		m.Text = strings.TrimSpace(textSel.Text())

		m.Views = parseCount(s.Find(".tgme_widget_message_views").First().Text())

		if dt, ok := s.Find(".tgme_widget_message_date time[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				m.PostedAt = t.UTC()
			}
		}

		photo := s.Find(".tgme_widget_message_photo_wrap").First()
		if photo.Length() > 0 {
			m.HasAttachment = true
			if style, ok := photo.Attr("style"); ok {
				if match := backgroundURL.FindStringSubmatch(style); match != nil {
					m.AttachmentURL = match[1]
				}
			}
		}

		msgs = append(msgs, m)
	})
	return msgs
}

// postID extracts 123 from "channel/123".
func postID(post string) (int64, bool) {
	i := strings.LastIndex(post, "/")
	if i < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(post[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseCount reads abbreviated counters such as "845", "1.2K" or "3M".
func parseCount(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1e3
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1e6
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f*mult + 0.5)
}
