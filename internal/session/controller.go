// Package session runs one feed session: which item is centered, which players
// exist, which one has sound, and when the next page is fetched.
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/metrics"
	"reels/internal/player"
	"reels/internal/progress"
)

var (
	ErrClosed      = errors.New("session closed")
	ErrNotRealized = errors.New("centered item has no player yet")
	ErrNoDownload  = errors.New("download not available")
)

type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

func (d Direction) String() string {
	if d == Previous {
		return "previous"
	}
	return "next"
}

// Scroller performs the smooth scroll towards index. The resulting centered
// report comes back through UpdateLayout or OnViewportCentered.
type Scroller interface {
	ScrollTo(index int, itemID string)
}

type ScrollerFunc func(index int, itemID string)

func (f ScrollerFunc) ScrollTo(index int, itemID string) { f(index, itemID) }

type DownloadLinker interface {
	DownloadURL(item feed.Item) (string, error)
}

type Options struct {
	Source feed.Source
	Engine player.Engine
	Query  feed.Query

	WindowRadius       int
	LookaheadThreshold int
	CenterThreshold    float64
	RootMargin         float64
	WarmUp             bool

	Board    *progress.Board
	Scroller Scroller
	Linker   DownloadLinker
	Sinks    []Sink

	// Runner executes fetches and player creation. Defaults to one goroutine per call.
	Runner func(func())
	// Dispatch brings player events back in, preserving their order.
	Dispatch func(func())

	ReadyAttempts int
	ReadyPoll     time.Duration
	Sleep         func(time.Duration)
	After         func(time.Duration, func())
}

func (o *Options) defaults() {
	if o.WindowRadius <= 0 {
		o.WindowRadius = config.WindowRadius
	}
	if o.LookaheadThreshold <= 0 {
		o.LookaheadThreshold = config.LookaheadThreshold
	}
	if o.CenterThreshold <= 0 {
		o.CenterThreshold = config.CenterThreshold
	}
	if o.RootMargin <= 0 {
		o.RootMargin = config.RootMargin
	}
	if o.Query.PageSize <= 0 {
		o.Query.PageSize = config.DefaultPageSize
	}
	if o.Query.Order == "" {
		o.Query.Order = config.DefaultOrder
	}
	if o.Query.OrderBy == "" {
		o.Query.OrderBy = config.DefaultOrderBy
	}
	if o.Runner == nil {
		o.Runner = func(fn func()) { go fn() }
	}
	if o.Dispatch == nil {
		q := &serialQueue{}
		o.Dispatch = q.Push
	}
	if o.ReadyAttempts <= 0 {
		o.ReadyAttempts = config.EngineReadyAttempts
	}
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = config.EngineReadyPoll
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Scroller == nil {
		o.Scroller = ScrollerFunc(func(int, string) {})
	}
}

// Controller owns one feed mount: the loaded items, the open session and its players.
// All state is guarded by mu; side effects collected while locked run after unlock.
type Controller struct {
	mu   sync.Mutex
	opts Options
	bus  *Bus

	loaded        *feed.Window
	loadedHasMore bool

	open        bool
	generation  uint64
	ctx         context.Context
	cancel      context.CancelFunc
	window      *feed.Window
	current     int
	target      int
	centered    string
	globalMuted bool
	lastPct     map[string]int

	registry  *Registry
	observer  *Observer
	paginator *Paginator

	actions []func()
}

func New(opts Options) *Controller {
	opts.defaults()
	c := &Controller{
		opts:          opts,
		bus:           &Bus{},
		loaded:        feed.NewWindow(nil),
		loadedHasMore: true,
		current:       -1,
		target:        -1,
		registry:      NewRegistry(),
		lastPct:       make(map[string]int),
	}
	for _, s := range opts.Sinks {
		c.bus.Add(s)
	}
	return c
}

// Subscribe adds a sink for session events.
func (c *Controller) Subscribe(s Sink) {
	c.bus.Add(s)
}

func (c *Controller) unlock() {
	actions := c.actions
	c.actions = nil
	c.mu.Unlock()
	for _, fn := range actions {
		guard("action", fn)
	}
}

func (c *Controller) emitLocked(ev Event) {
	ev.At = time.Now()
	c.actions = append(c.actions, func() { c.bus.Emit(ev) })
}

// SetFeed replaces the loaded items. An open session keeps its own window.
func (c *Controller) SetFeed(items []feed.Item, hasMore bool) {
	c.mu.Lock()
	defer c.unlock()
	c.loaded = feed.NewWindow(items)
	c.loadedHasMore = hasMore
}

// Load fetches the first page into the loaded feed.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loaded = feed.NewWindow(nil)
	c.loadedHasMore = true
	c.mu.Unlock()

	_, err := c.LoadMore(ctx)
	return err
}

// LoadMore fetches the page after the loaded items while no session is using them.
func (c *Controller) LoadMore(ctx context.Context) (int, error) {
	c.mu.Lock()
	if !c.loadedHasMore || c.opts.Source == nil {
		c.mu.Unlock()
		return 0, nil
	}
	q := c.opts.Query
	q.Offset = c.loaded.Len()
	c.mu.Unlock()

	page, err := c.fetch(ctx, q)
	if err != nil {
		logging.Fetch(q.Offset, err)
		return 0, &feed.FetchError{Offset: q.Offset, Err: err}
	}

	c.mu.Lock()
	defer c.unlock()
	added := c.loaded.Append(page.Items)
	c.loadedHasMore = page.HasMore
	return len(added), nil
}

func (c *Controller) Feed() []feed.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded.Items()
}

func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedHasMore
}

// Open starts a session centered on itemID, closing any session already open.
// The id must be among the loaded items.
func (c *Controller) Open(ctx context.Context, itemID string) error {
	c.mu.Lock()
	defer c.unlock()

	idx := c.loaded.IndexOf(itemID)
	if idx < 0 {
		return &feed.ItemNotFoundError{ID: itemID}
	}
	c.closeLocked()

	c.generation++
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.window = feed.NewWindow(c.loaded.Items())
	c.open = true
	c.current = idx
	c.target = idx
	c.centered = ""

	c.observer = NewObserver(c.opts.CenterThreshold, c.opts.RootMargin)
	for _, id := range c.window.IDs() {
		c.observer.Observe(id)
	}
	c.paginator = NewPaginator(c.opts.Query, c.opts.LookaheadThreshold)
	if !c.loadedHasMore {
		c.paginator.Stop()
	}

	metrics.OpenSessions.Inc()
	logging.Session("open", "item", itemID, "index", idx, "loaded", c.window.Len())

	item, _ := c.window.At(idx)
	c.emitLocked(Event{Kind: EventOpen, ItemID: item.ID, Title: item.Title, Index: idx})
	scroller := c.opts.Scroller
	c.actions = append(c.actions, func() { scroller.ScrollTo(idx, itemID) })

	c.centerLocked(itemID)
	return nil
}

// Close tears the session down before returning. Closing a closed session does nothing.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if !c.open {
		return
	}
	c.open = false
	c.generation++
	if c.cancel != nil {
		c.cancel()
	}
	c.registry.Clear()
	c.observer.Disconnect()
	c.paginator.Stop()

	closing, _ := c.window.At(c.current)
	c.window = nil
	c.current = -1
	c.target = -1
	c.centered = ""
	clear(c.lastPct)

	metrics.OpenSessions.Dec()
	logging.Session("close", "item", closing.ID)
	c.emitLocked(Event{Kind: EventClose, ItemID: closing.ID, Title: closing.Title, Index: -1})
}

// Navigate asks for a scroll one item up or down. The realized window only
// follows once the viewport reports the new centered item.
func (c *Controller) Navigate(dir Direction) (int, bool) {
	c.mu.Lock()
	defer c.unlock()
	if !c.open {
		return -1, false
	}

	next := c.target + int(dir)
	if next < 0 || next >= c.window.Len() {
		return c.target, false
	}
	c.target = next

	item, _ := c.window.At(next)
	logging.Session("navigate", "dir", dir, "index", next)
	c.emitLocked(Event{Kind: EventScroll, ItemID: item.ID, Title: item.Title, Index: next})
	scroller := c.opts.Scroller
	c.actions = append(c.actions, func() { scroller.ScrollTo(next, item.ID) })
	return next, true
}

func (c *Controller) OnViewportCentered(itemID string) {
	c.mu.Lock()
	defer c.unlock()
	if !c.open {
		return
	}
	c.centerLocked(itemID)
}

func (c *Controller) OnViewportLeft(itemID string) {
	c.mu.Lock()
	defer c.unlock()
	c.leftLocked(itemID)
}

// UpdateLayout feeds the current scroll geometry to the observer and applies its crossings.
func (c *Controller) UpdateLayout(l Layout) {
	c.mu.Lock()
	defer c.unlock()
	if !c.open {
		return
	}
	for _, tr := range c.observer.Update(l) {
		if tr.Entered {
			if tr.ID == c.centered {
				continue
			}
			c.centerLocked(tr.ID)
		} else {
			c.leftLocked(tr.ID)
		}
	}
}

func (c *Controller) centerLocked(itemID string) {
	idx := c.window.IndexOf(itemID)
	if idx < 0 {
		logging.Warn("centered item not in window", "item", itemID)
		return
	}
	// 滚动途中经过的卡片不覆盖更远的目标
	prev := c.current
	passing := (idx > prev && c.target > idx) || (idx < prev && c.target < idx)
	if !passing {
		c.target = idx
	}
	c.current = idx
	c.centered = itemID

	c.reconcileLocked()
	c.activateLocked()
	c.paginateLocked()

	item, _ := c.window.At(idx)
	logging.Session("centered", "item", itemID, "index", idx, "realized", c.registry.IDs())
	c.emitLocked(Event{Kind: EventEnteredView, ItemID: item.ID, Title: item.Title, Index: idx})
}

func (c *Controller) leftLocked(itemID string) {
	if !c.open || itemID == c.centered {
		return
	}
	if h, ok := c.registry.Get(itemID); ok {
		_ = h.Deactivate(true)
	}
}

// reconcileLocked evicts handles outside the window and starts creation for missing ones.
func (c *Controller) reconcileLocked() {
	set := realizationWindow(c.window, c.current, c.opts.WindowRadius)
	for _, id := range c.registry.IDs() {
		if !set[id] && id != c.centered {
			c.registry.Evict(id)
			delete(c.lastPct, id)
			c.emitDestroyedLocked(id)
		}
	}

	r := c.opts.WindowRadius
	for i := c.current - r; i <= c.current+r; i++ {
		item, ok := c.window.At(i)
		if !ok || c.registry.Has(item.ID) {
			continue
		}
		c.spawnLocked(item, item.ID == c.centered)
	}
}

func (c *Controller) emitDestroyedLocked(id string) {
	item, _ := c.window.Get(id)
	c.emitLocked(Event{Kind: EventDestroyed, ItemID: id, Title: item.Title, Index: c.window.IndexOf(id)})
}

// activateLocked plays the centered handle and pauses the rest.
func (c *Controller) activateLocked() {
	for _, id := range c.registry.IDs() {
		h, _ := c.registry.Get(id)
		if id == c.centered {
			_ = h.Activate(!c.globalMuted)
			continue
		}
		_ = h.Deactivate(true)
	}
	c.enforceAudioLocked()
}

// enforceAudioLocked keeps at most one handle audible: the centered one, unless globally muted.
func (c *Controller) enforceAudioLocked() {
	for _, id := range c.registry.IDs() {
		h, _ := c.registry.Get(id)
		if c.open && id == c.centered {
			if want := !c.globalMuted; h.Audible() != want {
				_ = h.SetAudible(want)
			}
			continue
		}
		if h.Audible() || !h.Muted() {
			_ = h.Deactivate(false)
		}
	}
}

func (c *Controller) inWindowLocked(id string) bool {
	if !c.open {
		return false
	}
	return realizationWindow(c.window, c.current, c.opts.WindowRadius)[id]
}

func (c *Controller) spawnLocked(item feed.Item, autoplay bool) {
	ticket, ok := c.registry.Reserve(item.ID)
	if !ok {
		return
	}
	gen, ctx := c.generation, c.ctx

	c.opts.Runner(func() {
		guard("create", func() {
			h, err := c.create(ctx, gen, item, autoplay)
			c.completeCreate(gen, ticket, item, h, err)
		})
	})
}

// create polls the engine until it is ready, giving up once the item is no longer wanted.
func (c *Controller) create(ctx context.Context, gen uint64, item feed.Item, autoplay bool) (*player.Handle, error) {
	opts := player.Options{
		WarmUp: c.opts.WarmUp,
		Board:  c.opts.Board,
		After:  c.opts.After,
		OnEvent: func(ev player.Event) {
			c.opts.Dispatch(func() {
				guard("player event", func() { c.handlePlayerEvent(gen, item, ev) })
			})
		},
	}

	var err error
	for attempt := 0; attempt < c.opts.ReadyAttempts; attempt++ {
		var h *player.Handle
		h, err = player.Create(ctx, c.opts.Engine, item, autoplay, opts)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, player.ErrEngineNotReady) || !c.wanted(gen, item.ID) {
			return nil, err
		}
		c.opts.Sleep(c.opts.ReadyPoll)
	}
	return nil, err
}

func (c *Controller) wanted(gen uint64, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && c.inWindowLocked(id)
}

func (c *Controller) completeCreate(gen, ticket uint64, item feed.Item, h *player.Handle, err error) {
	c.mu.Lock()
	defer c.unlock()

	released := c.registry.Release(item.ID, ticket)
	if err != nil {
		if gen != c.generation || !c.open {
			metrics.PlayerCreatesTotal.WithLabelValues("stale").Inc()
			return
		}
		result := "error"
		if errors.Is(err, player.ErrEngineNotReady) {
			result = "not_ready"
		}
		metrics.PlayerCreatesTotal.WithLabelValues(result).Inc()
		logging.Warn("player create failed", "item", item.ID, "err", err)
		c.emitLocked(Event{Kind: EventError, ItemID: item.ID, Title: item.Title, Index: c.window.IndexOf(item.ID), Err: err.Error()})
		return
	}

	if !released || gen != c.generation || !c.inWindowLocked(item.ID) || c.registry.Has(item.ID) {
		metrics.PlayerCreatesTotal.WithLabelValues("stale").Inc()
		_ = h.Destroy()
		if gen == c.generation && c.open {
			c.emitDestroyedLocked(item.ID)
		}
		return
	}

	c.registry.Put(h)
	metrics.PlayerCreatesTotal.WithLabelValues("ok").Inc()
	if item.ID == c.centered {
		_ = h.Activate(!c.globalMuted)
	} else {
		_ = h.Deactivate(true)
	}
	c.enforceAudioLocked()
}

func (c *Controller) handlePlayerEvent(gen uint64, item feed.Item, ev player.Event) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.generation || !c.open || !c.registry.Has(item.ID) {
		return
	}

	out := Event{ItemID: item.ID, Title: item.Title, Index: c.window.IndexOf(item.ID)}
	switch ev.Type {
	case player.EventPlay:
		out.Kind = EventPlay
	case player.EventPause:
		out.Kind = EventPause
	case player.EventComplete:
		out.Kind = EventComplete
		c.lastPct[item.ID] = 0
	case player.EventMute:
		out.Kind = EventMute
		out.Muted = ev.Muted
	case player.EventTime:
		pct := int(math.Floor(ev.Percent))
		if last, ok := c.lastPct[item.ID]; ok && last == pct {
			break
		}
		c.lastPct[item.ID] = pct
		out.Kind = EventProgress
		out.Percent = ev.Percent
	case player.EventError:
		out.Kind = EventError
		if ev.Err != nil {
			out.Err = ev.Err.Error()
		}
	}
	if out.Kind != "" {
		c.emitLocked(out)
	}
	c.enforceAudioLocked()
}

func (c *Controller) paginateLocked() {
	if !c.open || c.opts.Source == nil || !c.paginator.Due(c.current, c.window.Len()) {
		return
	}
	q := c.paginator.Begin(c.window.Len())
	gen, ctx := c.generation, c.ctx
	logging.Session("paginate", "offset", q.Offset, "current", c.current)

	c.opts.Runner(func() {
		guard("fetch", func() {
			page, err := c.fetch(ctx, q)
			c.completeFetch(gen, q, page, err)
		})
	})
}

func (c *Controller) fetch(ctx context.Context, q feed.Query) (feed.Page, error) {
	ctx, span := otel.Tracer("reels/session").Start(ctx, "feed.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("feed.offset", q.Offset),
		attribute.Int("feed.page_size", q.PageSize),
		attribute.String("feed.category", q.Category),
	)

	start := time.Now()
	page, err := c.opts.Source.Fetch(ctx, q)
	metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feed.Page{}, err
	}
	span.SetAttributes(attribute.Int("feed.items", len(page.Items)), attribute.Bool("feed.has_more", page.HasMore))
	return page, nil
}

func (c *Controller) completeFetch(gen uint64, q feed.Query, page feed.Page, err error) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.generation || !c.open {
		metrics.FeedFetchesTotal.WithLabelValues("stale").Inc()
		return
	}

	c.paginator.Finish(page, err)
	if err != nil {
		fe := &feed.FetchError{Offset: q.Offset, Err: err}
		metrics.FeedFetchesTotal.WithLabelValues("error").Inc()
		logging.Fetch(q.Offset, err)
		c.emitLocked(Event{Kind: EventFetch, Index: c.current, Err: fe.Error()})
		return
	}
	metrics.FeedFetchesTotal.WithLabelValues("ok").Inc()

	added := c.window.Append(page.Items)
	c.loaded.Append(page.Items)
	c.loadedHasMore = page.HasMore
	for _, it := range added {
		c.observer.Observe(it.ID)
	}
	logging.Session("page appended", "offset", q.Offset, "added", len(added), "hasMore", page.HasMore)
	c.emitLocked(Event{Kind: EventFetch, Index: c.current, Added: len(added)})

	if len(added) > 0 && c.centered != "" {
		c.reconcileLocked()
		c.enforceAudioLocked()
	}
}

// ToggleMute flips the global mute flag and returns the new value.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	defer c.unlock()
	c.globalMuted = !c.globalMuted
	logging.Session("mute", "muted", c.globalMuted)
	c.enforceAudioLocked()
	return c.globalMuted
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalMuted
}

// TogglePlayback pauses a playing centered item and resumes any other state.
func (c *Controller) TogglePlayback() error {
	c.mu.Lock()
	defer c.unlock()
	h, err := c.centeredHandleLocked()
	if err != nil {
		return err
	}
	if h.State() == player.StatePlaying {
		err = h.Pause()
	} else {
		err = h.Activate(!c.globalMuted)
	}
	c.enforceAudioLocked()
	return err
}

func (c *Controller) Seek(percent float64) error {
	c.mu.Lock()
	defer c.unlock()
	h, err := c.centeredHandleLocked()
	if err != nil {
		return err
	}
	return h.Seek(percent)
}

func (c *Controller) centeredHandleLocked() (*player.Handle, error) {
	if !c.open {
		return nil, ErrClosed
	}
	h, ok := c.registry.Get(c.centered)
	if !ok {
		return nil, ErrNotRealized
	}
	return h, nil
}

// Download returns the download link for a loaded item.
func (c *Controller) Download(itemID string) (string, error) {
	c.mu.Lock()
	item, ok := c.loaded.Get(itemID)
	if !ok && c.open {
		item, ok = c.window.Get(itemID)
	}
	linker := c.opts.Linker
	c.mu.Unlock()

	if !ok {
		return "", &feed.ItemNotFoundError{ID: itemID}
	}
	if linker == nil {
		return "", ErrNoDownload
	}
	return linker.DownloadURL(item)
}

// Item looks an id up among the loaded items, then the open window.
func (c *Controller) Item(itemID string) (feed.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.loaded.Get(itemID)
	if !ok && c.open {
		item, ok = c.window.Get(itemID)
	}
	return item, ok
}

// Current returns the centered item and its index.
func (c *Controller) Current() (feed.Item, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return feed.Item{}, -1, false
	}
	item, ok := c.window.At(c.current)
	return item, c.current, ok
}

// NavigationBounds reports whether previous and next targets exist.
func (c *Controller) NavigationBounds() (hasPrev, hasNext bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return false, false
	}
	return c.current > 0, c.current < c.window.Len()-1
}

func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

type PlayerView struct {
	ID      string  `json:"id"`
	State   string  `json:"state"`
	Muted   bool    `json:"muted"`
	Audible bool    `json:"audible"`
	Percent float64 `json:"percent"`
}

type Snapshot struct {
	Open        bool         `json:"open"`
	Index       int          `json:"index"`
	Target      int          `json:"target"`
	Current     *feed.Item   `json:"current,omitempty"`
	Window      []string     `json:"window"`
	Players     []PlayerView `json:"players"`
	GlobalMuted bool         `json:"globalMuted"`
	HasPrev     bool         `json:"hasPrev"`
	HasNext     bool         `json:"hasNext"`
	Fetching    bool         `json:"fetching"`
	Exhausted   bool         `json:"exhausted"`
	Loaded      int          `json:"loaded"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Open:        c.open,
		Index:       c.current,
		Target:      c.target,
		GlobalMuted: c.globalMuted,
		Loaded:      c.loaded.Len(),
		Players:     []PlayerView{},
	}
	if !c.open {
		return s
	}
	if item, ok := c.window.At(c.current); ok {
		s.Current = &item
	}
	s.Window = c.window.IDs()
	s.HasPrev = c.current > 0
	s.HasNext = c.current < c.window.Len()-1
	s.Fetching = c.paginator.InFlight()
	s.Exhausted = c.paginator.Exhausted()
	for _, id := range c.registry.IDs() {
		h, _ := c.registry.Get(id)
		s.Players = append(s.Players, PlayerView{
			ID:      id,
			State:   h.State().String(),
			Muted:   h.Muted(),
			Audible: h.Audible(),
			Percent: h.Percent(),
		})
	}
	return s
}
