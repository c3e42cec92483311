package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"reels/internal/session"
)

type scrollMsg struct {
	index int
	id    string
}

type sessionEventMsg session.Event

// Bridge carries controller callbacks into the bubbletea loop. It is the
// controller's Scroller and one of its sinks; neither side ever blocks.
// Progress events are coalesced to the latest one per item so they cannot
// crowd lifecycle events out of the buffer.
type Bridge struct {
	scrolls chan scrollMsg
	events  chan session.Event

	mu       sync.Mutex
	progress map[string]session.Event
	order    []string
	notify   chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{
		scrolls:  make(chan scrollMsg, 16),
		events:   make(chan session.Event, 64),
		progress: make(map[string]session.Event),
		notify:   make(chan struct{}, 1),
	}
}

func (b *Bridge) ScrollTo(index int, itemID string) {
	select {
	case b.scrolls <- scrollMsg{index: index, id: itemID}:
	default:
		// keep the newest target
		select {
		case <-b.scrolls:
		default:
		}
		select {
		case b.scrolls <- scrollMsg{index: index, id: itemID}:
		default:
		}
	}
}

func (b *Bridge) Emit(ev session.Event) {
	if ev.Kind == session.EventProgress {
		b.mu.Lock()
		if _, ok := b.progress[ev.ItemID]; !ok {
			b.order = append(b.order, ev.ItemID)
		}
		b.progress[ev.ItemID] = ev
		b.mu.Unlock()
		select {
		case b.notify <- struct{}{}:
		default:
		}
		return
	}
	select {
	case b.events <- ev:
	default:
	}
}

// nextProgress pops the oldest pending progress event.
func (b *Bridge) nextProgress() (session.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return session.Event{}, false
	}
	id := b.order[0]
	b.order = b.order[1:]
	ev := b.progress[id]
	delete(b.progress, id)
	if len(b.order) > 0 {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}
	return ev, true
}

// listen waits for the next scroll request or session event.
func (b *Bridge) listen() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case s := <-b.scrolls:
				return s
			case ev := <-b.events:
				return sessionEventMsg(ev)
			case <-b.notify:
				if ev, ok := b.nextProgress(); ok {
					return sessionEventMsg(ev)
				}
			}
		}
	}
}
