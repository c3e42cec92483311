// Package feed holds the playable feed entries and the ordered window a session scrolls through.
package feed

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"reels/internal/config"
)

const (
	defaultCTALabel  = "Click Here"
	defaultCTATarget = "_self"
)

var (
	ErrMissingID       = errors.New("feed item: missing id")
	ErrMissingVideoURL = errors.New("feed item: missing video url")
)

// Raw is an unvalidated item as the data source hands it over. Any field may be empty.
type Raw struct {
	ID          string
	VideoURL    string
	MediaID     string
	PosterID    string
	Title       string
	CTAURL      string
	CTALabel    string
	CTATarget   string
	Categories  []string
	CategoryIDs []string
	Duration    time.Duration
	Link        string
}

type CTA struct {
	URL    string `json:"url,omitempty"`
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Item is one playable short. Values are never mutated after NewItem.
type Item struct {
	ID          string        `json:"id"`
	VideoURL    string        `json:"videoUrl"`
	MediaID     string        `json:"mediaId,omitempty"`
	PosterID    string        `json:"posterId,omitempty"`
	Title       string        `json:"title"`
	CTA         CTA           `json:"cta"`
	Categories  []string      `json:"categories,omitempty"`
	CategoryIDs []string      `json:"categoryIds,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Link        string        `json:"link,omitempty"`
}

// NewItem validates r and fills defaults once, so nothing downstream needs fallbacks.
func NewItem(r Raw) (Item, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return Item{}, ErrMissingID
	}
	videoURL := strings.TrimSpace(r.VideoURL)
	if videoURL == "" {
		return Item{}, ErrMissingVideoURL
	}

	label := strings.TrimSpace(r.CTALabel)
	if label == "" {
		label = defaultCTALabel
	}
	label = truncate(label, config.CTATitleLength)

	target := strings.TrimSpace(r.CTATarget)
	if target == "" {
		target = defaultCTATarget
	}

	duration := r.Duration
	if duration < 0 {
		duration = 0
	}

	return Item{
		ID:          id,
		VideoURL:    videoURL,
		MediaID:     strings.TrimSpace(r.MediaID),
		PosterID:    strings.TrimSpace(r.PosterID),
		Title:       strings.TrimSpace(r.Title),
		CTA:         CTA{URL: strings.TrimSpace(r.CTAURL), Label: label, Target: target},
		Categories:  cloneStrings(r.Categories),
		CategoryIDs: cloneStrings(r.CategoryIDs),
		Duration:    duration,
		Link:        strings.TrimSpace(r.Link),
	}, nil
}

// HasCTA reports whether a call-to-action should be shown at all.
func (i Item) HasCTA() bool {
	return i.CTA.URL != "" && i.CTA.Label != ""
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
