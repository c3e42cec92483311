package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/progress"
)

var ErrDestroyed = errors.New("player handle destroyed")

type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:    "idle",
	StateLoading: "loading",
	StatePlaying: "playing",
	StatePaused:  "paused",
	StateEnded:   "ended",
	StateFailed:  "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

type Options struct {
	// WarmUp plays then pauses and rewinds non-autoplay instances once they are ready,
	// so the first frame is decoded before the item is centered.
	WarmUp bool
	Board  *progress.Board

	FirstFrameDelay time.Duration
	After           func(time.Duration, func())

	// OnEvent receives every instance event after the handle has reconciled its own state.
	// It is called without any handle lock held.
	OnEvent func(Event)
}

// Handle is the control surface over one instance. A handle is bound to exactly one item.
type Handle struct {
	mu sync.Mutex

	item      feed.Item
	inst      Instance
	opts      Options
	indicator *progress.Indicator
	unsub     func()

	state     State
	muted     bool
	autoplay  bool
	played    bool
	audible   bool
	destroyed bool
}

func ContainerID(itemID string) string {
	return "reel-" + itemID
}

// Create spawns a muted instance for item and returns its handle in the loading state.
// The instance only becomes audible after it reported a play and the owner marked it audible.
func Create(ctx context.Context, engine Engine, item feed.Item, autoplay bool, opts Options) (*Handle, error) {
	if engine == nil {
		return nil, &EngineNotReadyError{}
	}
	if err := engine.Ready(); err != nil {
		return nil, &EngineNotReadyError{Err: err}
	}

	inst, err := engine.Spawn(ctx, ContainerID(item.ID), item.VideoURL, SpawnOptions{
		Title:    item.Title,
		Muted:    true,
		Autoplay: autoplay,
	})
	if err != nil {
		if errors.Is(err, ErrEngineNotReady) {
			return nil, &EngineNotReadyError{Err: err}
		}
		return nil, fmt.Errorf("spawn player for %s: %w", item.ID, err)
	}

	if opts.FirstFrameDelay <= 0 {
		opts.FirstFrameDelay = config.FirstFrameMuteDelay
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}

	h := &Handle{
		item:      item,
		inst:      inst,
		opts:      opts,
		indicator: progress.New(item.ID),
		state:     StateLoading,
		muted:     true,
		autoplay:  autoplay,
	}
	opts.Board.Attach(h.indicator)
	h.unsub = inst.Subscribe(h.onEvent)

	logging.Player(item.ID, "create", "autoplay", autoplay)
	return h, nil
}

func (h *Handle) ID() string {
	return h.item.ID
}

func (h *Handle) Item() feed.Item {
	return h.item
}

func (h *Handle) Indicator() *progress.Indicator {
	return h.indicator
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

// Audible reports whether the owner currently wants sound from this handle.
func (h *Handle) Audible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audible
}

func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

func (h *Handle) Percent() float64 {
	return h.indicator.Percent()
}

func (h *Handle) Play() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	if h.state != StateFailed {
		h.state = StatePlaying
	}
	h.mu.Unlock()
	return h.inst.Play()
}

func (h *Handle) Pause() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	if h.state == StatePlaying || h.state == StateLoading {
		h.state = StatePaused
	}
	h.mu.Unlock()
	return h.inst.Pause()
}

// SetMuted forwards to the instance. No event is emitted here; the instance's
// own mute event reconciles the cached flag.
func (h *Handle) SetMuted(muted bool) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	h.muted = muted
	h.mu.Unlock()
	return h.inst.SetMuted(muted)
}

func (h *Handle) Seek(percent float64) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	h.mu.Unlock()
	h.indicator.Set(percent)
	return h.inst.Seek(h.indicator.Percent())
}

// Activate starts playback. When audible is set the handle unmutes as soon as
// a play event has been seen, never before.
func (h *Handle) Activate(audible bool) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	if h.state == StateFailed {
		h.audible = false
		h.mu.Unlock()
		return nil
	}
	h.autoplay = true
	h.audible = audible
	unmute := audible && h.played && h.muted
	if unmute {
		h.muted = false
	}
	h.state = StatePlaying
	h.mu.Unlock()

	if err := h.inst.Play(); err != nil {
		return err
	}
	if unmute {
		return h.inst.SetMuted(false)
	}
	return nil
}

// SetAudible grants or revokes sound without touching playback.
func (h *Handle) SetAudible(audible bool) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	if h.state == StateFailed {
		audible = false
	}
	h.audible = audible
	muted := !(audible && h.played)
	changed := muted != h.muted
	h.muted = muted
	h.mu.Unlock()

	if !changed {
		return nil
	}
	return h.inst.SetMuted(muted)
}

// Deactivate force-mutes the handle and optionally pauses it.
func (h *Handle) Deactivate(pause bool) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.audible = false
	h.autoplay = false
	h.muted = true
	if pause && (h.state == StatePlaying || h.state == StateLoading) {
		h.state = StatePaused
	}
	h.mu.Unlock()

	err := h.inst.SetMuted(true)
	if pause {
		err = errors.Join(err, h.inst.Pause())
	}
	return err
}

// Destroy is the single teardown path. Calling it again does nothing.
func (h *Handle) Destroy() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.destroyed = true
	h.audible = false
	h.muted = true
	h.state = StateIdle
	unsub := h.unsub
	h.unsub = nil
	h.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	h.opts.Board.Detach(h.item.ID, h.indicator)
	h.indicator.Reset()

	logging.Player(h.item.ID, "destroy")
	return h.inst.Close()
}

func (h *Handle) onEvent(ev Event) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}

	var (
		unmute, remute bool
		warm, loop     bool
		firstFrame     bool
	)
	switch ev.Type {
	case EventReady:
		warm = h.opts.WarmUp && !h.autoplay
	case EventPlay:
		if h.state != StateFailed {
			h.state = StatePlaying
		}
		h.played = true
		if h.autoplay && h.audible && h.muted {
			h.muted = false
			unmute = true
		}
	case EventPause:
		if h.state == StatePlaying || h.state == StateLoading {
			h.state = StatePaused
		}
	case EventMute:
		if !ev.Muted && !h.audible {
			h.muted = true
			remute = true
		} else {
			h.muted = ev.Muted
		}
	case EventTime:
		h.indicator.Set(ev.Percent)
	case EventComplete:
		h.state = StateEnded
		h.indicator.Reset()
		loop = true
	case EventFirstFrame:
		firstFrame = true
	case EventError:
		h.state = StateFailed
		h.audible = false
		if !h.muted {
			h.muted = true
			remute = true
		}
	}
	autoplay := h.autoplay
	h.mu.Unlock()

	inst := h.inst
	switch {
	case warm:
		_ = inst.Play()
		_ = inst.Pause()
		_ = inst.Seek(0)
	case unmute:
		_ = inst.SetMuted(false)
	case remute:
		_ = inst.SetMuted(true)
	case loop:
		_ = inst.Seek(0)
		if autoplay {
			_ = inst.Play()
		}
	case firstFrame:
		h.opts.After(h.opts.FirstFrameDelay, h.applyAudio)
	}

	if ev.Type == EventError {
		logging.Player(h.item.ID, "error", "err", ev.Err)
	}
	if h.opts.OnEvent != nil {
		h.opts.OnEvent(ev)
	}
}

// applyAudio settles the mute flag after the first frame rendered.
func (h *Handle) applyAudio() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	muted := !(h.audible && h.played)
	h.muted = muted
	h.mu.Unlock()
	_ = h.inst.SetMuted(muted)
}
