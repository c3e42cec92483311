package api

import (
	"context"
	"time"

	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
)

const posterWidth = 480

// Source serves the feed from a library on the server.
type Source struct {
	client   *Client
	parentID string
}

func NewSource(client *Client, parentID string) *Source {
	return &Source{client: client, parentID: parentID}
}

func (s *Source) Fetch(ctx context.Context, q feed.Query) (feed.Page, error) {
	raw, total, err := s.client.GetShorts(ctx, s.parentID, q)
	if err != nil {
		return feed.Page{}, err
	}

	items := make([]feed.Item, 0, len(raw))
	for _, m := range raw {
		it, err := feed.NewItem(s.toRaw(m))
		if err != nil {
			// 跳过无效条目，不影响整页
			logging.Warn("skip feed item", "id", m.ID, "err", err)
			continue
		}
		items = append(items, it)
	}

	return feed.Page{
		Items:   items,
		HasMore: q.Offset+len(raw) < total && len(raw) > 0,
	}, nil
}

func (s *Source) toRaw(m MediaItem) feed.Raw {
	r := feed.Raw{
		ID:         m.ID,
		MediaID:    m.ID,
		PosterID:   m.imageID(),
		Title:      m.Name,
		Categories: m.Genres,
		Duration:   time.Duration(m.RunTimeTicks * (int64(time.Second) / config.TicksPerSecond)),
		Link:       s.client.WebLink(m.ID),
	}
	if m.ID != "" {
		r.VideoURL = s.client.StreamURL(m)
	}
	for _, g := range m.GenreItems {
		r.CategoryIDs = append(r.CategoryIDs, g.ID)
	}
	if len(m.ExternalUrls) > 0 {
		r.CTAURL = m.ExternalUrls[0].URL
		r.CTALabel = m.ExternalUrls[0].Name
		r.CTATarget = "_blank"
	}
	return r
}

// PosterURL returns the poster image for item at the default width.
func (s *Source) PosterURL(item feed.Item) string {
	id := item.PosterID
	if id == "" {
		id = item.ID
	}
	return s.client.ImageURLByID(id, posterWidth)
}
