package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"reels/internal/feed"
	"reels/internal/player"
	"reels/internal/service"
	"reels/internal/session"
)

func TestScrollConverges(t *testing.T) {
	s := newScroll()
	s.jump(0)
	s.to(40)
	if !s.moving {
		t.Fatal("expected animation to start")
	}
	for i := 0; i < 500 && s.step(); i++ {
	}
	if s.moving || s.top() != 40 {
		t.Fatalf("scroll stopped at %d moving=%v", s.top(), s.moving)
	}

	s.to(40)
	if s.moving {
		t.Fatal("no animation expected for the current row")
	}
}

func TestScrollTopNeverNegative(t *testing.T) {
	s := newScroll()
	s.pos = -3
	if s.top() != 0 {
		t.Fatalf("top = %d", s.top())
	}
}

func TestFeedLayout(t *testing.T) {
	items := []service.ItemView{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	l := feedLayout(items, 20, 10, 20)
	if l.ViewportTop != 10 || l.ViewportHeight != 20 || len(l.Items) != 3 {
		t.Fatalf("layout = %+v", l)
	}
	if p := l.Items[2]; p.ID != "c" || p.Top != 40 || p.Height != 20 {
		t.Fatalf("third card = %+v", p)
	}
}

func TestBridgeNeverBlocks(t *testing.T) {
	b := NewBridge()
	for i := 0; i < 40; i++ {
		b.ScrollTo(i, "x")
		b.Emit(session.Event{Kind: session.EventScroll, Index: i})
	}
	var last scrollMsg
	for len(b.scrolls) > 0 {
		last = <-b.scrolls
	}
	if last.index != 39 {
		t.Fatalf("newest scroll lost, got %d", last.index)
	}
	if len(b.events) != cap(b.events) {
		t.Fatalf("events = %d", len(b.events))
	}
}

func TestBridgeCoalescesProgress(t *testing.T) {
	b := NewBridge()
	for i := 0; i < 500; i++ {
		b.Emit(session.Event{Kind: session.EventProgress, ItemID: "a", Percent: float64(i % 100)})
		b.Emit(session.Event{Kind: session.EventProgress, ItemID: "b", Percent: 1})
	}
	b.Emit(session.Event{Kind: session.EventEnteredView, ItemID: "b", Title: "Reel b"})
	b.Emit(session.Event{Kind: session.EventProgress, ItemID: "a", Percent: 42})

	if len(b.events) != 1 {
		t.Fatalf("lifecycle events = %d, want 1", len(b.events))
	}

	var entered int
	progress := map[string]float64{}
	for i := 0; i < 3; i++ {
		ev := session.Event(b.listen()().(sessionEventMsg))
		switch ev.Kind {
		case session.EventEnteredView:
			entered++
		case session.EventProgress:
			if _, dup := progress[ev.ItemID]; dup {
				t.Fatalf("progress for %s delivered twice", ev.ItemID)
			}
			progress[ev.ItemID] = ev.Percent
		}
	}
	if entered != 1 || progress["a"] != 42 || progress["b"] != 1 {
		t.Fatalf("entered=%d progress=%v", entered, progress)
	}
	if len(b.events) != 0 || len(b.order) != 0 {
		t.Fatal("bridge not drained")
	}
}

func TestFitLines(t *testing.T) {
	if got := fitLines("a\nb\nc", 2); got != "a\nb" {
		t.Fatalf("cut = %q", got)
	}
	if got := fitLines("a", 3); got != "a\n\n" {
		t.Fatalf("pad = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("hello world", 8); got != "hello..." {
		t.Fatalf("got %q", got)
	}
}

func newTestModel(t *testing.T, ids ...string) *Model {
	t.Helper()
	var items []feed.Item
	for _, id := range ids {
		it, err := feed.NewItem(feed.Raw{ID: id, VideoURL: "https://cdn/" + id, Title: "Reel " + id})
		if err != nil {
			t.Fatal(err)
		}
		items = append(items, it)
	}
	bridge := NewBridge()
	ctrl := session.New(session.Options{
		Source:   feed.NewStaticSource(items),
		Engine:   player.NewMemoryEngine(false),
		Runner:   func(func()) {},
		Scroller: bridge,
		Sinks:    []session.Sink{bridge},
	})
	svc := service.NewReelService(ctrl, nil, nil)
	t.Cleanup(svc.Close)

	m := New(context.Background(), svc, Options{Bridge: bridge})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m.Update(m.loadFeed(false)())
	return m
}

// nextScroll pulls bridge messages until a scroll request shows up.
func nextScroll(t *testing.T, b *Bridge) scrollMsg {
	t.Helper()
	for i := 0; i < 100; i++ {
		if s, ok := b.listen()().(scrollMsg); ok {
			return s
		}
	}
	t.Fatal("no scroll request")
	return scrollMsg{}
}

func TestModelOpensAndScrolls(t *testing.T) {
	m := newTestModel(t, "a", "b", "c")
	if m.state != StateGrid || len(m.items) != 3 {
		t.Fatalf("state=%v items=%d", m.state, len(m.items))
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != StateFeed || m.session == nil || m.session.Current == nil || m.session.Current.ID != "a" {
		t.Fatalf("open failed: state=%v session=%+v", m.state, m.session)
	}
	s := nextScroll(t, m.opts.Bridge)
	if s.index != 0 {
		t.Fatalf("open scroll = %+v", s)
	}
	m.Update(s)
	if m.scroll.moving {
		t.Fatal("already at the opened card")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	s = nextScroll(t, m.opts.Bridge)
	if s.index != 1 || s.id != "b" {
		t.Fatalf("scroll = %+v", s)
	}
	m.Update(s)
	for i := 0; i < 500 && m.scroll.moving; i++ {
		m.Update(scrollTickMsg{})
	}
	if m.scroll.top() != m.cardHeight() {
		t.Fatalf("top = %d, want %d", m.scroll.top(), m.cardHeight())
	}
	if m.session.Current == nil || m.session.Current.ID != "b" {
		t.Fatalf("current = %+v", m.session.Current)
	}

	out := m.View()
	if !strings.Contains(out, "REELS") || !strings.Contains(out, "Reel b") {
		t.Fatal("feed view missing status or card")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != StateGrid || m.cursor != 1 {
		t.Fatalf("close: state=%v cursor=%d", m.state, m.cursor)
	}
	if m.svc.Controller().IsOpen() {
		t.Fatal("session still open")
	}
}

func TestModelJumpUnknownItem(t *testing.T) {
	m := newTestModel(t, "a")
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	if m.state != StateJump {
		t.Fatalf("state = %v", m.state)
	}
	m.jumpInput.SetValue("zzz")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != StateGrid || !strings.Contains(m.status, "zzz") {
		t.Fatalf("state=%v status=%q", m.state, m.status)
	}
}

func TestModelRendersFeedToHeight(t *testing.T) {
	m := newTestModel(t, "a", "b")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.scroll.jump(m.cardHeight() / 2)

	out := m.renderFeed(m.contentWidth(), m.height-1)
	if n := len(strings.Split(out, "\n")); n != m.height-1 {
		t.Fatalf("feed has %d lines, want %d", n, m.height-1)
	}
}

func TestModelShareCopiesLink(t *testing.T) {
	m := newTestModel(t, "a", "b")
	var copied []string
	m.opts.Copier = func(s string) error {
		copied = append(copied, s)
		return nil
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m.Update(cmd())
	if len(copied) != 0 || !strings.Contains(m.status, "Share") {
		t.Fatalf("copied=%v status=%q", copied, m.status)
	}

	m.svc.SetShareLink(func(it feed.Item) string { return "https://reels/?short_post_id=" + it.ID })
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.cursor != 1 {
		t.Fatalf("cursor = %d", m.cursor)
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m.Update(cmd())
	if len(copied) != 1 || copied[0] != "https://reels/?short_post_id=b" {
		t.Fatalf("copied = %v", copied)
	}
	if m.status != "Copied https://reels/?short_post_id=b" {
		t.Fatalf("status = %q", m.status)
	}
}
