package player

import (
	"context"
	"errors"
	"fmt"
)

var ErrEngineNotReady = errors.New("media engine not ready")

// EngineNotReadyError is returned by Create while the engine cannot spawn instances.
// Callers retry after a delay; it is never fatal.
type EngineNotReadyError struct {
	Err error
}

func (e *EngineNotReadyError) Error() string {
	if e.Err == nil {
		return ErrEngineNotReady.Error()
	}
	return fmt.Sprintf("%s: %v", ErrEngineNotReady, e.Err)
}

func (e *EngineNotReadyError) Is(target error) bool {
	return target == ErrEngineNotReady
}

func (e *EngineNotReadyError) Unwrap() error {
	return e.Err
}

type EventType int

const (
	EventReady EventType = iota
	EventPlay
	EventPause
	EventMute
	EventTime
	EventComplete
	EventFirstFrame
	EventError
)

var eventNames = [...]string{
	EventReady:      "ready",
	EventPlay:       "play",
	EventPause:      "pause",
	EventMute:       "mute",
	EventTime:       "timeUpdate",
	EventComplete:   "complete",
	EventFirstFrame: "firstFrame",
	EventError:      "error",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// Event is one notification from an instance. Percent is set for EventTime, Muted for EventMute.
type Event struct {
	Type    EventType
	Percent float64
	Muted   bool
	Err     error
}

type SpawnOptions struct {
	Title    string
	Muted    bool
	Autoplay bool
}

// Instance is one live player inside the engine.
type Instance interface {
	Play() error
	Pause() error
	SetMuted(muted bool) error
	Seek(percent float64) error
	// Subscribe registers fn for every event and returns a func that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
	Close() error
}

// Engine spawns instances keyed by a container id.
type Engine interface {
	Ready() error
	Spawn(ctx context.Context, containerID, url string, opts SpawnOptions) (Instance, error)
}
