package session

import (
	"runtime/debug"
	"sync"
	"time"

	"reels/internal/logging"
	"reels/internal/metrics"
)

type EventKind string

const (
	EventOpen        EventKind = "open"
	EventClose       EventKind = "close"
	EventEnteredView EventKind = "entered_view"
	EventPlay        EventKind = "play"
	EventPause       EventKind = "pause"
	EventComplete    EventKind = "complete"
	EventMute        EventKind = "mute"
	EventProgress    EventKind = "progress"
	EventFetch       EventKind = "fetch"
	EventScroll      EventKind = "scroll"
	EventError       EventKind = "error"
	// EventDestroyed is emitted when a realized player is torn down while the session stays open.
	EventDestroyed EventKind = "destroyed"
)

// Event is what external consumers (analytics, UIs) receive.
type Event struct {
	Kind    EventKind `json:"kind"`
	ItemID  string    `json:"itemId,omitempty"`
	Title   string    `json:"title,omitempty"`
	Index   int       `json:"index"`
	Percent float64   `json:"percent,omitempty"`
	Muted   bool      `json:"muted,omitempty"`
	Added   int       `json:"added,omitempty"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type Sink interface {
	Emit(ev Event)
}

type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Bus fans events out to every registered sink. A panicking sink is logged and skipped.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

func (b *Bus) Add(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	metrics.SessionEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	for _, s := range sinks {
		guard("sink", func() { s.Emit(ev) })
	}
}

// guard runs fn and swallows a panic so one broken callback cannot take the feed down.
func guard(where string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecoveredPanicsTotal.WithLabelValues(where).Inc()
			logging.Error("panic recovered", "where", where, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// serialQueue runs submitted funcs one at a time in submission order.
type serialQueue struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (q *serialQueue) Push(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()
	go q.drain()
}

func (q *serialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		fn()
	}
}
