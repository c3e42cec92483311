// Package service is the layer shared by the TUI and the web server.
package service

import (
	"reels/internal/feed"
	"reels/internal/session"
)

// ItemView is a feed item as the UIs render it
type ItemView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	VideoURL    string   `json:"videoUrl"`
	PosterURL   string   `json:"posterUrl,omitempty"`
	CTA         *CTAView `json:"cta,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	DurationSec int64    `json:"durationSec,omitempty"`
	Link        string   `json:"link,omitempty"`
	Watched     int      `json:"watched,omitempty"`
	Loops       int      `json:"loops,omitempty"`
}

type CTAView struct {
	URL    string `json:"url"`
	Label  string `json:"label"`
	Target string `json:"target"`
}

// FeedView is the loaded feed
type FeedView struct {
	Items   []ItemView `json:"items"`
	HasMore bool       `json:"hasMore"`
}

// SessionView is the open session plus the item views of its window
type SessionView struct {
	session.Snapshot
	Items []ItemView `json:"items,omitempty"`
}

// NavigateResult is returned from a next/previous request
type NavigateResult struct {
	Target int  `json:"target"`
	Moved  bool `json:"moved"`
}

// DownloadResult carries the link a client should open
type DownloadResult struct {
	ItemID string `json:"itemId"`
	URL    string `json:"url"`
}

// ShareResult is the deep link of an item plus ready-made share intents
type ShareResult struct {
	ItemID    string        `json:"itemId"`
	Title     string        `json:"title"`
	URL       string        `json:"url"`
	Platforms []ShareTarget `json:"platforms"`
}

type ShareTarget struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *ReelService) view(it feed.Item) ItemView {
	v := ItemView{
		ID:          it.ID,
		Title:       it.Title,
		VideoURL:    it.VideoURL,
		Categories:  it.Categories,
		DurationSec: int64(it.Duration.Seconds()),
		Link:        it.Link,
	}
	if s.poster != nil {
		v.PosterURL = s.poster(it)
	}
	if it.HasCTA() {
		v.CTA = &CTAView{URL: it.CTA.URL, Label: it.CTA.Label, Target: it.CTA.Target}
	}
	if s.store != nil {
		if w, ok := s.store.Watch(it.ID); ok {
			v.Watched = w.Percent
			v.Loops = w.Completed
		}
	}
	return v
}

func (s *ReelService) views(items []feed.Item) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, s.view(it))
	}
	return out
}
