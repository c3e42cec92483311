package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/player"
	"reels/internal/session"
	"reels/internal/storage"
)

// ErrNoShareLink is returned when an item has no link to share.
var ErrNoShareLink = errors.New("no share link for item")

// ReelService wraps one feed controller for the UIs.
type ReelService struct {
	ctrl   *session.Controller
	store  *storage.Store
	poster func(feed.Item) string
	share  func(feed.Item) string
}

// NewReelService creates a service around ctrl. store and poster may be nil.
func NewReelService(ctrl *session.Controller, store *storage.Store, poster func(feed.Item) string) *ReelService {
	s := &ReelService{ctrl: ctrl, store: store, poster: poster}
	if store != nil {
		ctrl.Subscribe(session.SinkFunc(s.remember))
	}
	return s
}

// SetShareLink sets the deep-link builder used by Share. Without one the
// item's own link is shared.
func (s *ReelService) SetShareLink(fn func(feed.Item) string) {
	s.share = fn
}

func (s *ReelService) Controller() *session.Controller {
	return s.ctrl
}

// remember keeps the last centered item.
func (s *ReelService) remember(ev session.Event) {
	if ev.Kind != session.EventEnteredView {
		return
	}
	if err := s.store.SetLastItem(ev.ItemID); err != nil {
		logging.Warn("store update failed", "item", ev.ItemID, "err", err)
	}
}

// ==================== Feed ====================

func (s *ReelService) Load(ctx context.Context) (*FeedView, error) {
	if err := s.ctrl.Load(ctx); err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	return s.Feed(), nil
}

func (s *ReelService) LoadMore(ctx context.Context) (*FeedView, error) {
	if _, err := s.ctrl.LoadMore(ctx); err != nil {
		return nil, fmt.Errorf("load more: %w", err)
	}
	return s.Feed(), nil
}

func (s *ReelService) Feed() *FeedView {
	return &FeedView{Items: s.views(s.ctrl.Feed()), HasMore: s.ctrl.HasMore()}
}

// ==================== Session ====================

// Open starts a session at itemID. An empty id resumes the last centered item,
// falling back to the first loaded one.
func (s *ReelService) Open(ctx context.Context, itemID string) (*SessionView, error) {
	if itemID == "" {
		itemID = s.resumeID()
	}
	if itemID == "" {
		return nil, &feed.ItemNotFoundError{}
	}
	if err := s.ctrl.Open(ctx, itemID); err != nil {
		return nil, err
	}
	if s.store != nil && s.store.Muted() != s.ctrl.Muted() {
		s.ctrl.ToggleMute()
	}
	return s.Session(), nil
}

func (s *ReelService) resumeID() string {
	items := s.ctrl.Feed()
	if s.store != nil {
		last := s.store.LastItem()
		for _, it := range items {
			if it.ID == last {
				return last
			}
		}
	}
	if len(items) > 0 {
		return items[0].ID
	}
	return ""
}

func (s *ReelService) Close() {
	s.ctrl.Close()
}

// ParseDirection accepts next/down/+1 and prev/previous/up/-1.
func ParseDirection(v string) (session.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "next", "down", "1", "+1":
		return session.Next, nil
	case "prev", "previous", "up", "-1":
		return session.Previous, nil
	}
	return 0, fmt.Errorf("unknown direction %q", v)
}

func (s *ReelService) Navigate(dir session.Direction) NavigateResult {
	target, moved := s.ctrl.Navigate(dir)
	return NavigateResult{Target: target, Moved: moved}
}

func (s *ReelService) Centered(itemID string) { s.ctrl.OnViewportCentered(itemID) }

func (s *ReelService) Left(itemID string) { s.ctrl.OnViewportLeft(itemID) }

// ToggleMute flips global mute and persists the preference.
func (s *ReelService) ToggleMute() bool {
	muted := s.ctrl.ToggleMute()
	if s.store != nil {
		if err := s.store.SetMuted(muted); err != nil {
			logging.Warn("store mute failed", "err", err)
		}
	}
	return muted
}

func (s *ReelService) TogglePlayback() error { return s.ctrl.TogglePlayback() }

func (s *ReelService) Seek(percent float64) error { return s.ctrl.Seek(percent) }

func (s *ReelService) Download(itemID string) (*DownloadResult, error) {
	if itemID == "" {
		cur, _, ok := s.ctrl.Current()
		if !ok {
			return nil, session.ErrClosed
		}
		itemID = cur.ID
	}
	u, err := s.ctrl.Download(itemID)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{ItemID: itemID, URL: u}, nil
}

// Share returns the deep link for itemID (the current item when empty) and
// the share intents built from it.
func (s *ReelService) Share(itemID string) (*ShareResult, error) {
	var item feed.Item
	if itemID == "" {
		cur, _, ok := s.ctrl.Current()
		if !ok {
			return nil, session.ErrClosed
		}
		item = cur
	} else {
		it, ok := s.ctrl.Item(itemID)
		if !ok {
			return nil, &feed.ItemNotFoundError{ID: itemID}
		}
		item = it
	}

	link := item.Link
	if s.share != nil {
		link = s.share(item)
	}
	if link == "" {
		return nil, ErrNoShareLink
	}
	return &ShareResult{
		ItemID:    item.ID,
		Title:     item.Title,
		URL:       link,
		Platforms: shareTargets(link, item.Title),
	}, nil
}

func shareTargets(link, title string) []ShareTarget {
	u, t := url.QueryEscape(link), url.QueryEscape(title)
	return []ShareTarget{
		{Name: "Facebook", URL: "https://www.facebook.com/sharer/sharer.php?u=" + u},
		{Name: "X", URL: "https://twitter.com/intent/tweet?text=" + t + "&url=" + u},
		{Name: "WhatsApp", URL: "https://api.whatsapp.com/send?text=" + url.QueryEscape(title+" "+link)},
		{Name: "Telegram", URL: "https://telegram.me/share/url?url=" + u + "&text=" + t},
	}
}

func (s *ReelService) Session() *SessionView {
	snap := s.ctrl.Snapshot()
	v := &SessionView{Snapshot: snap}
	if !snap.Open {
		return v
	}
	byID := make(map[string]feed.Item)
	for _, it := range s.ctrl.Feed() {
		byID[it.ID] = it
	}
	for _, id := range snap.Window {
		if it, ok := byID[id]; ok {
			v.Items = append(v.Items, s.view(it))
		} else {
			v.Items = append(v.Items, ItemView{ID: id})
		}
	}
	return v
}

// MPVAvailable reports whether the external player can be used.
func (s *ReelService) MPVAvailable() bool {
	return player.Available()
}
