// Package feed reads channels through an RSS/Atom bridge that publishes one
// feed per channel.
package feed

import (
	"context"
	"fmt"
	"html"
	"iter"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/source"
)

// Client is a source.Source backed by a feed bridge.
type Client struct {
	urlTemplate string
	fetcher     *source.Fetcher
	parser      *gofeed.Parser
	policy      *bluemonday.Policy
}

// New creates a client. urlTemplate contains "{channel}", e.g.
// "https://rsshub.app/telegram/channel/{channel}".
func New(urlTemplate string, fetcher *source.Fetcher) *Client {
	return &Client{
		urlTemplate: urlTemplate,
		fetcher:     fetcher,
		parser:      gofeed.NewParser(),
		policy:      bluemonday.StrictPolicy(),
	}
}

func (c *Client) feedURL(channel string) string {
	return strings.ReplaceAll(c.urlTemplate, "{channel}", url.PathEscape(channel))
}

func (c *Client) fetchFeed(ctx context.Context, channel string) (*gofeed.Feed, error) {
	body, err := c.fetcher.Get(ctx, channel, c.feedURL(channel))
	if err != nil {
		return nil, err
	}
	f, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed for %s: %v: %w", channel, err, domain.ErrSourceUnavailable)
	}
	return f, nil
}

// Resolve checks that the bridge serves a parseable feed for channel.
func (c *Client) Resolve(ctx context.Context, channel string) error {
	_, err := c.fetchFeed(ctx, channel)
	return err
}

// Messages yields the newest limit feed items. A feed only carries a
// recent window, so there is no paging.
func (c *Client) Messages(ctx context.Context, channel string, limit int) iter.Seq2[source.Message, error] {
	return func(yield func(source.Message, error) bool) {
		f, err := c.fetchFeed(ctx, channel)
		if err != nil {
			yield(source.Message{}, err)
			return
		}

		msgs := make([]source.Message, 0, len(f.Items))
		for _, item := range f.Items {
			if m, ok := c.parseFeedItem(channel, item); ok {
				msgs = append(msgs, m)
			}
		}
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })

		for i, m := range msgs {
			if i >= limit {
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// FetchAttachment downloads the image of msg.
func (c *Client) FetchAttachment(ctx context.Context, msg source.Message) ([]byte, error) {
	if msg.AttachmentURL == "" {
		return nil, fmt.Errorf("message %s/%d has no attachment url", msg.Channel, msg.ID)
	}
	return c.fetcher.Get(ctx, msg.Channel, msg.AttachmentURL)
}

func (c *Client) parseFeedItem(channel string, item *gofeed.Item) (source.Message, bool) {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	id, ok := messageID(guid)
	if !ok {
		if id, ok = messageID(item.Link); !ok {
			return source.Message{}, false
		}
	}

	m := source.Message{ID: id, Channel: channel}

	body := item.Description
	if body == "" {
		body = item.Content
	}
	m.Text = c.plainText(body)

	if item.PublishedParsed != nil {
		m.PostedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		m.PostedAt = item.UpdatedParsed.UTC()
	}

	if item.Image != nil && item.Image.URL != "" {
		m.AttachmentURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				m.AttachmentURL = enc.URL
				break
			}
		}
	}
	if m.AttachmentURL == "" {
		m.AttachmentURL = firstImage(body)
	}
	m.HasAttachment = m.AttachmentURL != ""

	return m, true
}

// plainText strips markup and decodes entities, keeping line breaks.
func (c *Client) plainText(s string) string {
	s = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(s)
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

func firstImage(body string) string {
	if !strings.Contains(body, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

// messageID reads the trailing numeric path segment of a post link such as
// https://t.me/channel/123.
func messageID(link string) (int64, bool) {
	if link == "" {
		return 0, false
	}
	p := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		p = u.Path
	}
	id, err := strconv.ParseInt(path.Base(strings.TrimRight(p, "/")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
