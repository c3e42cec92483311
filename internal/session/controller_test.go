package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"reels/internal/feed"
	"reels/internal/player"
	"reels/internal/progress"
)

// queue collects async work so tests decide when it runs.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

func (q *queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fns) == 0 {
		return nil, false
	}
	fn := q.fns[0]
	q.fns = q.fns[1:]
	return fn, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	engine  *player.MemoryEngine
	board   *progress.Board
	work    *queue
	events  *queue
	rec     *recorder
	scrolls []int
}

func items(t *testing.T, ids ...string) []feed.Item {
	t.Helper()
	out := make([]feed.Item, 0, len(ids))
	for _, id := range ids {
		it, err := feed.NewItem(feed.Raw{ID: id, VideoURL: "https://cdn.example/" + id + ".mp4", Title: "Reel " + id})
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, it)
	}
	return out
}

func seq(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", i+1)
	}
	return ids
}

func newHarness(t *testing.T, src feed.Source, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		engine: player.NewMemoryEngine(true),
		board:  progress.NewBoard(),
		work:   &queue{},
		events: &queue{},
		rec:    &recorder{},
	}
	opts := Options{
		Source:   src,
		Engine:   h.engine,
		Board:    h.board,
		Runner:   h.work.push,
		Dispatch: h.events.push,
		Sleep:    func(time.Duration) {},
		After:    func(_ time.Duration, fn func()) { fn() },
		Scroller: ScrollerFunc(func(i int, _ string) { h.scrolls = append(h.scrolls, i) }),
		Sinks:    []Sink{},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = New(opts)
	h.ctrl.Subscribe(h.rec)
	return h
}

// settle runs queued work and player events until nothing is left.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 1000; i++ {
		if fn, ok := h.work.pop(); ok {
			fn()
			continue
		}
		if fn, ok := h.events.pop(); ok {
			fn()
			continue
		}
		return
	}
	h.t.Fatal("work did not settle")
}

func (h *harness) realized() []string {
	var ids []string
	for _, p := range h.ctrl.Snapshot().Players {
		ids = append(ids, p.ID)
	}
	return ids
}

func (h *harness) player(id string) PlayerView {
	h.t.Helper()
	for _, p := range h.ctrl.Snapshot().Players {
		if p.ID == id {
			return p
		}
	}
	h.t.Fatalf("no player for %s", id)
	return PlayerView{}
}

// checkInvariants asserts single audio and the realization bound.
func (h *harness) checkInvariants() {
	h.t.Helper()
	snap := h.ctrl.Snapshot()
	unmuted := 0
	for _, p := range snap.Players {
		if !p.Muted {
			unmuted++
		}
	}
	if unmuted > 1 {
		h.t.Fatalf("%d handles unmuted: %+v", unmuted, snap.Players)
	}

	live := 0
	for _, inst := range h.engine.Instances() {
		if !inst.Closed() {
			live++
			if !inst.Muted() && unmuted == 0 {
				h.t.Fatalf("instance %s audible while no handle is", inst.ContainerID)
			}
		}
	}
	if !snap.Open {
		if len(snap.Players) != 0 || live != 0 {
			h.t.Fatalf("closed session still has %d handles, %d live instances", len(snap.Players), live)
		}
		return
	}

	allowed := map[string]bool{}
	for i := snap.Index - 1; i <= snap.Index+1; i++ {
		if i >= 0 && i < len(snap.Window) {
			allowed[snap.Window[i]] = true
		}
	}
	for _, p := range snap.Players {
		if !allowed[p.ID] {
			h.t.Fatalf("handle %s realized outside window around %d", p.ID, snap.Index)
		}
	}
}

func openSettled(t *testing.T, h *harness, id string) {
	t.Helper()
	if err := h.ctrl.Open(context.Background(), id); err != nil {
		t.Fatalf("Open(%s): %v", id, err)
	}
	h.settle()
	h.checkInvariants()
}

func TestScenarioOpenRealizesNeighbours(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D", "E"), false)

	openSettled(t, h, "C")

	if got := h.realized(); !slices.Equal(got, []string{"B", "C", "D"}) {
		t.Fatalf("realized = %v, want [B C D]", got)
	}
	c := h.player("C")
	if c.Muted || c.State != "playing" {
		t.Fatalf("C = %+v, want unmuted and playing", c)
	}
	for _, id := range []string{"B", "D"} {
		if p := h.player(id); !p.Muted || p.State == "playing" {
			t.Fatalf("%s = %+v, want muted and not playing", id, p)
		}
	}
	if h.board.Len() != 3 {
		t.Fatalf("board has %d indicators, want 3", h.board.Len())
	}
	if !slices.Equal(h.scrolls, []int{2}) {
		t.Fatalf("scrolls = %v, want the open index", h.scrolls)
	}
	entered := h.rec.kinds(EventEnteredView)
	if len(entered) != 1 || entered[0].ItemID != "C" || entered[0].Title != "Reel C" {
		t.Fatalf("entered_view events = %+v", entered)
	}
}

func TestScenarioNavigateNextFollowsViewport(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D", "E"), false)
	openSettled(t, h, "C")
	bInstances := h.engine.Live("reel-B")

	idx, ok := h.ctrl.Navigate(Next)
	if !ok || idx != 3 {
		t.Fatalf("Navigate = %d, %v", idx, ok)
	}
	// Navigation alone does not touch the realized set.
	if got := h.realized(); !slices.Equal(got, []string{"B", "C", "D"}) {
		t.Fatalf("realized after navigate = %v", got)
	}
	h.checkInvariants()

	layout := func(top int) Layout {
		l := Layout{ViewportTop: top, ViewportHeight: 10}
		for i, id := range []string{"A", "B", "C", "D", "E"} {
			l.Items = append(l.Items, Placement{ID: id, Top: i * 10, Height: 10})
		}
		return l
	}
	h.ctrl.UpdateLayout(layout(20))
	h.ctrl.UpdateLayout(layout(30))
	h.settle()
	h.checkInvariants()

	if got := h.realized(); !slices.Equal(got, []string{"C", "D", "E"}) {
		t.Fatalf("realized = %v, want [C D E]", got)
	}
	if d := h.player("D"); d.Muted {
		t.Fatalf("D should be unmuted: %+v", d)
	}
	for _, id := range []string{"C", "E"} {
		if !h.player(id).Muted {
			t.Fatalf("%s should be muted", id)
		}
	}
	if len(bInstances) != 1 || !bInstances[0].Closed() {
		t.Fatal("B's instance should be destroyed")
	}
	if ev := h.rec.kinds(EventDestroyed); len(ev) != 1 || ev[0].ItemID != "B" || ev[0].Title != "Reel B" {
		t.Fatalf("destroyed events = %+v", ev)
	}
	if _, cur, _ := h.ctrl.Current(); cur != 3 {
		t.Fatalf("current = %d, want 3", cur)
	}
}

func TestNavigateKeepsPendingTargetWhilePassing(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D", "E"), false)
	if err := h.ctrl.Open(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	h.settle()

	h.ctrl.Navigate(Next)
	h.ctrl.Navigate(Next)
	// the scroll toward C passes B first
	h.ctrl.OnViewportCentered("B")
	if next, ok := h.ctrl.Navigate(Next); !ok || next != 3 {
		t.Fatalf("navigate = %d, %v; want 3", next, ok)
	}
	if !slices.Equal(h.scrolls, []int{0, 1, 2, 3}) {
		t.Fatalf("scrolls = %v", h.scrolls)
	}

	// a centered report against the direction of travel resets the target
	h.ctrl.OnViewportCentered("A")
	if next, _ := h.ctrl.Navigate(Next); next != 1 {
		t.Fatalf("navigate after reset = %d, want 1", next)
	}
	h.settle()
	h.checkInvariants()
}

func TestNavigateClampsAtBounds(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B"), false)

	if _, ok := h.ctrl.Navigate(Next); ok {
		t.Fatal("navigate on a closed session should be a no-op")
	}
	openSettled(t, h, "A")

	if idx, ok := h.ctrl.Navigate(Previous); ok || idx != 0 {
		t.Fatalf("Navigate(Previous) at start = %d, %v", idx, ok)
	}
	if hasPrev, hasNext := h.ctrl.NavigationBounds(); hasPrev || !hasNext {
		t.Fatalf("bounds = %v, %v", hasPrev, hasNext)
	}
	if _, ok := h.ctrl.Navigate(Next); !ok {
		t.Fatal("Navigate(Next) should move")
	}
	if _, ok := h.ctrl.Navigate(Next); ok {
		t.Fatal("Navigate(Next) past the end should be a no-op")
	}
	if !slices.Equal(h.scrolls, []int{0, 1}) {
		t.Fatalf("scrolls = %v", h.scrolls)
	}
}

func TestScenarioSingleFetchWhileInFlight(t *testing.T) {
	src := feed.NewStaticSource(items(t, seq(10)...))
	h := newHarness(t, src, func(o *Options) { o.Query.PageSize = 6 })
	h.ctrl.SetFeed(items(t, seq(6)...), true)

	// current = len-2 with lookahead 3
	if err := h.ctrl.Open(context.Background(), "5"); err != nil {
		t.Fatal(err)
	}
	h.ctrl.OnViewportCentered("6")
	h.ctrl.OnViewportCentered("5")
	if !h.ctrl.Snapshot().Fetching {
		t.Fatal("fetch should be in flight")
	}
	h.settle()
	h.checkInvariants()

	calls := src.Calls()
	if len(calls) != 1 {
		t.Fatalf("source called %d times, want 1", len(calls))
	}
	if calls[0].Offset != 6 || calls[0].PageSize != 6 || calls[0].Order != "DESC" || calls[0].OrderBy != "date" {
		t.Fatalf("query = %+v", calls[0])
	}
	if n := len(h.ctrl.Snapshot().Window); n != 10 {
		t.Fatalf("window has %d items, want 10", n)
	}
}

func TestScenarioExhaustedStopsFetching(t *testing.T) {
	src := feed.NewStaticSource(items(t, seq(8)...))
	h := newHarness(t, src, func(o *Options) { o.Query.PageSize = 6 })
	h.ctrl.SetFeed(items(t, seq(6)...), true)

	openSettled(t, h, "1")
	if len(src.Calls()) != 0 {
		t.Fatal("no fetch expected far from the end")
	}

	h.ctrl.OnViewportCentered("3")
	h.settle()
	if len(src.Calls()) != 1 || !h.ctrl.Snapshot().Exhausted {
		t.Fatalf("calls = %d, exhausted = %v", len(src.Calls()), h.ctrl.Snapshot().Exhausted)
	}

	for _, id := range []string{"6", "7", "8"} {
		h.ctrl.OnViewportCentered(id)
		h.settle()
		h.checkInvariants()
	}
	if len(src.Calls()) != 1 {
		t.Fatalf("source called %d times after exhaustion", len(src.Calls()))
	}
}

func TestScenarioStaleCreationDestroyed(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D", "E"), false)

	if err := h.ctrl.Open(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	// The user scrolls away before any player exists.
	h.ctrl.OnViewportCentered("D")
	h.settle()
	h.checkInvariants()

	if got := h.realized(); !slices.Equal(got, []string{"C", "D", "E"}) {
		t.Fatalf("realized = %v", got)
	}
	for _, id := range []string{"A", "B"} {
		insts := h.engine.Instances()
		for _, inst := range insts {
			if inst.ContainerID != "reel-"+id {
				continue
			}
			if !inst.Closed() {
				t.Fatalf("stale instance for %s left open", id)
			}
			if slices.Contains(inst.Calls(), "mute=false") {
				t.Fatalf("stale instance for %s was activated: %v", id, inst.Calls())
			}
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C"), false)
	openSettled(t, h, "B")

	h.ctrl.Close()
	h.ctrl.Close()
	h.settle()
	h.checkInvariants()

	if n := len(h.rec.kinds(EventClose)); n != 1 {
		t.Fatalf("close events = %d, want 1", n)
	}
	for _, inst := range h.engine.Instances() {
		closes := 0
		for _, c := range inst.Calls() {
			if c == "close" {
				closes++
			}
		}
		if closes != 1 {
			t.Fatalf("%s closed %d times", inst.ContainerID, closes)
		}
	}
	if h.board.Len() != 0 {
		t.Fatalf("board still has %d indicators", h.board.Len())
	}
	if _, _, ok := h.ctrl.Current(); ok {
		t.Fatal("closed session has no current item")
	}
}

func TestOpenCloseOpenRoundTrip(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D", "E"), false)

	openSettled(t, h, "C")
	h.ctrl.Close()
	openSettled(t, h, "C")

	if got := h.realized(); !slices.Equal(got, []string{"B", "C", "D"}) {
		t.Fatalf("realized = %v", got)
	}
	live := 0
	for _, inst := range h.engine.Instances() {
		if !inst.Closed() {
			live++
		}
	}
	if live != 3 {
		t.Fatalf("live instances = %d, want 3", live)
	}
	if h.player("C").Muted {
		t.Fatal("C should be audible after reopen")
	}
}

func TestReopenWhileOpenClosesFirst(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D", "E"), false)
	openSettled(t, h, "A")
	openSettled(t, h, "E")

	if got := h.realized(); !slices.Equal(got, []string{"D", "E"}) {
		t.Fatalf("realized = %v, want [D E]", got)
	}
	if n := len(h.rec.kinds(EventClose)); n != 1 {
		t.Fatalf("close events = %d, want 1", n)
	}
}

func TestCloseDiscardsInFlightWork(t *testing.T) {
	src := feed.NewStaticSource(items(t, seq(10)...))
	h := newHarness(t, src, nil)
	h.ctrl.SetFeed(items(t, seq(4)...), true)

	if err := h.ctrl.Open(context.Background(), "3"); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Close()
	h.settle()
	h.checkInvariants()

	if n := len(h.rec.kinds(EventFetch)); n != 0 {
		t.Fatalf("stale fetch produced %d events", n)
	}
	if got := len(h.ctrl.Feed()); got != 4 {
		t.Fatalf("loaded feed grew to %d from a stale page", got)
	}
}

func TestOpenUnknownItem(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A"), false)

	err := h.ctrl.Open(context.Background(), "missing")
	var nf *feed.ItemNotFoundError
	if !errors.As(err, &nf) || nf.ID != "missing" {
		t.Fatalf("err = %v, want ItemNotFoundError", err)
	}
	if h.ctrl.IsOpen() || h.work.len() != 0 {
		t.Fatal("failed open must not change state")
	}

	openSettled(t, h, "A")
	if err := h.ctrl.Open(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
	if !h.ctrl.IsOpen() {
		t.Fatal("failed open must leave the current session alone")
	}
}

type pageFunc func(q feed.Query) (feed.Page, error)

func (f pageFunc) Fetch(_ context.Context, q feed.Query) (feed.Page, error) { return f(q) }

func TestPaginationDeduplicatesOverlap(t *testing.T) {
	loaded := items(t, "A", "B", "C", "D")
	src := pageFunc(func(q feed.Query) (feed.Page, error) {
		return feed.Page{Items: items(t, "C", "D", "E", "F"), HasMore: true}, nil
	})
	h := newHarness(t, src, nil)
	h.ctrl.SetFeed(loaded, true)

	openSettled(t, h, "B")

	window := h.ctrl.Snapshot().Window
	if !slices.Equal(window, []string{"A", "B", "C", "D", "E", "F"}) {
		t.Fatalf("window = %v", window)
	}
	fetches := h.rec.kinds(EventFetch)
	if len(fetches) == 0 || fetches[0].Added != 2 {
		t.Fatalf("fetch events = %+v", fetches)
	}
}

func TestFetchFailureAllowsRetry(t *testing.T) {
	calls := 0
	src := pageFunc(func(q feed.Query) (feed.Page, error) {
		calls++
		if calls == 1 {
			return feed.Page{}, errors.New("gateway timeout")
		}
		return feed.Page{Items: items(t, "E"), HasMore: false}, nil
	})
	h := newHarness(t, src, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C", "D"), true)

	openSettled(t, h, "C")
	fetches := h.rec.kinds(EventFetch)
	if len(fetches) != 1 || fetches[0].Err == "" {
		t.Fatalf("fetch events = %+v, want one failure", fetches)
	}
	if h.ctrl.Snapshot().Fetching {
		t.Fatal("in-flight flag should clear after failure")
	}

	h.ctrl.OnViewportCentered("D")
	h.settle()
	if calls != 2 {
		t.Fatalf("calls = %d, want retry on next trigger", calls)
	}
	if n := len(h.ctrl.Snapshot().Window); n != 5 {
		t.Fatalf("window = %d items", n)
	}
}

func TestToggleMuteKeepsSingleAudio(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C"), false)
	openSettled(t, h, "B")

	if !h.ctrl.ToggleMute() {
		t.Fatal("ToggleMute should report muted")
	}
	h.settle()
	h.checkInvariants()
	for _, p := range h.ctrl.Snapshot().Players {
		if !p.Muted {
			t.Fatalf("%s unmuted under global mute", p.ID)
		}
	}

	// Global mute carries over to the next centered item.
	h.ctrl.OnViewportCentered("C")
	h.settle()
	if h.player("C").Muted != true {
		t.Fatal("C should stay muted")
	}

	if h.ctrl.ToggleMute() {
		t.Fatal("second toggle should unmute")
	}
	h.settle()
	h.checkInvariants()
	if h.player("C").Muted {
		t.Fatal("C should be audible again")
	}
}

func TestTogglePlaybackAndSeek(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B"), false)

	if err := h.ctrl.TogglePlayback(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	openSettled(t, h, "A")

	if err := h.ctrl.TogglePlayback(); err != nil {
		t.Fatal(err)
	}
	h.settle()
	if st := h.player("A").State; st != "paused" {
		t.Fatalf("state = %s, want paused", st)
	}
	if err := h.ctrl.TogglePlayback(); err != nil {
		t.Fatal(err)
	}
	h.settle()
	if st := h.player("A").State; st != "playing" {
		t.Fatalf("state = %s, want playing", st)
	}

	if err := h.ctrl.Seek(40); err != nil {
		t.Fatal(err)
	}
	if pct := h.player("A").Percent; pct != 40 {
		t.Fatalf("percent = %v", pct)
	}
}

func TestViewportLeftPausesNonCentered(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C"), false)
	openSettled(t, h, "B")

	for _, inst := range h.engine.Live("reel-C") {
		_ = inst.Play()
	}
	h.settle()
	h.ctrl.OnViewportLeft("C")
	h.ctrl.OnViewportLeft("B")
	h.settle()

	if st := h.player("C").State; st != "paused" {
		t.Fatalf("C state = %s, want paused", st)
	}
	if st := h.player("B").State; st != "playing" {
		t.Fatalf("centered B state = %s, want playing", st)
	}
}

func TestEngineNotReadyIsRetried(t *testing.T) {
	var h *harness
	sleeps := 0
	h = newHarness(t, nil, func(o *Options) {
		o.Sleep = func(time.Duration) {
			sleeps++
			if sleeps == 2 {
				h.engine.SetReady(nil)
			}
		}
	})
	h.engine.SetReady(errors.New("still loading"))
	h.ctrl.SetFeed(items(t, "A"), false)

	openSettled(t, h, "A")
	if sleeps != 2 {
		t.Fatalf("sleeps = %d, want 2", sleeps)
	}
	if got := h.realized(); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("realized = %v", got)
	}
}

func TestEngineNeverReadyGivesUp(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.ReadyAttempts = 3 })
	h.engine.SetReady(errors.New("missing"))
	h.ctrl.SetFeed(items(t, "A", "B"), false)

	openSettled(t, h, "A")
	if n := len(h.realized()); n != 0 {
		t.Fatalf("realized %d handles without an engine", n)
	}
	errs := h.rec.kinds(EventError)
	if len(errs) != 2 {
		t.Fatalf("error events = %d, want one per item", len(errs))
	}

	// A later centered report retries creation.
	h.engine.SetReady(nil)
	h.ctrl.OnViewportCentered("A")
	h.settle()
	if got := h.realized(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("realized = %v", got)
	}
}

func TestBrokenItemDoesNotBlockNeighbours(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B", "C"), false)
	openSettled(t, h, "B")

	for _, inst := range h.engine.Live("reel-B") {
		inst.Emit(player.Event{Type: player.EventError, Err: errors.New("404")})
	}
	h.settle()
	h.checkInvariants()

	if st := h.player("B").State; st != "failed" {
		t.Fatalf("B state = %s", st)
	}
	h.ctrl.OnViewportCentered("C")
	h.settle()
	h.checkInvariants()
	if h.player("C").Muted {
		t.Fatal("C should play with sound after a broken neighbour")
	}
}

func TestPanickingSinkIsContained(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) {
		o.Sinks = []Sink{SinkFunc(func(Event) { panic("boom") })}
	})
	h.ctrl.SetFeed(items(t, "A"), false)
	openSettled(t, h, "A")

	if len(h.rec.kinds(EventOpen)) != 1 {
		t.Fatal("other sinks should still receive events")
	}
}

func TestPlayerEventsReachSinks(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A", "B"), false)
	openSettled(t, h, "A")

	inst := h.engine.Live("reel-A")[0]
	inst.Emit(player.Event{Type: player.EventTime, Percent: 12.2})
	inst.Emit(player.Event{Type: player.EventTime, Percent: 12.7})
	inst.Emit(player.Event{Type: player.EventComplete})
	h.settle()

	if n := len(h.rec.kinds(EventProgress)); n != 1 {
		t.Fatalf("progress events = %d, want 1 per whole percent", n)
	}
	done := h.rec.kinds(EventComplete)
	if len(done) != 1 || done[0].ItemID != "A" || done[0].Title != "Reel A" {
		t.Fatalf("complete events = %+v", done)
	}
	if len(h.rec.kinds(EventPlay)) == 0 {
		t.Fatal("expected play events")
	}
}

type linker struct{}

func (linker) DownloadURL(item feed.Item) (string, error) {
	return "https://dl.example/" + item.ID, nil
}

func TestDownload(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.SetFeed(items(t, "A"), false)
	if _, err := h.ctrl.Download("A"); !errors.Is(err, ErrNoDownload) {
		t.Fatalf("err = %v, want ErrNoDownload", err)
	}

	h = newHarness(t, nil, func(o *Options) { o.Linker = linker{} })
	h.ctrl.SetFeed(items(t, "A"), false)
	url, err := h.ctrl.Download("A")
	if err != nil || url != "https://dl.example/A" {
		t.Fatalf("Download = %q, %v", url, err)
	}
	var nf *feed.ItemNotFoundError
	if _, err := h.ctrl.Download("zz"); !errors.As(err, &nf) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadAndLoadMore(t *testing.T) {
	src := feed.NewStaticSource(items(t, seq(5)...))
	h := newHarness(t, src, func(o *Options) { o.Query.PageSize = 3 })

	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(h.ctrl.Feed()); n != 3 || !h.ctrl.HasMore() {
		t.Fatalf("loaded %d, hasMore %v", n, h.ctrl.HasMore())
	}
	added, err := h.ctrl.LoadMore(context.Background())
	if err != nil || added != 2 || h.ctrl.HasMore() {
		t.Fatalf("LoadMore = %d, %v, hasMore %v", added, err, h.ctrl.HasMore())
	}
	added, _ = h.ctrl.LoadMore(context.Background())
	if added != 0 || len(src.Calls()) != 2 {
		t.Fatalf("exhausted feed fetched again: %d calls", len(src.Calls()))
	}
}

func TestLoadFailureIsFetchError(t *testing.T) {
	src := pageFunc(func(q feed.Query) (feed.Page, error) { return feed.Page{}, errors.New("dns") })
	h := newHarness(t, src, nil)
	err := h.ctrl.Load(context.Background())
	var fe *feed.FetchError
	if !errors.As(err, &fe) || fe.Offset != 0 {
		t.Fatalf("err = %v, want FetchError", err)
	}
}
