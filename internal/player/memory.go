package player

import (
	"context"
	"fmt"
	"sync"
)

// MemoryEngine keeps instances in process. It backs headless sessions when mpv is
// missing and lets tests drive instance events by hand.
type MemoryEngine struct {
	mu        sync.Mutex
	readyErr  error
	spawnErr  error
	echo      bool
	instances []*MemoryInstance
}

// NewMemoryEngine returns a ready engine. With echo set, commands are answered
// with the matching event the way a real engine would.
func NewMemoryEngine(echo bool) *MemoryEngine {
	return &MemoryEngine{echo: echo}
}

func (e *MemoryEngine) SetReady(err error) {
	e.mu.Lock()
	e.readyErr = err
	e.mu.Unlock()
}

func (e *MemoryEngine) FailSpawn(err error) {
	e.mu.Lock()
	e.spawnErr = err
	e.mu.Unlock()
}

func (e *MemoryEngine) Ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readyErr
}

func (e *MemoryEngine) Spawn(ctx context.Context, containerID, url string, opts SpawnOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readyErr != nil {
		return nil, &EngineNotReadyError{Err: e.readyErr}
	}
	if e.spawnErr != nil {
		return nil, e.spawnErr
	}
	inst := &MemoryInstance{
		ContainerID: containerID,
		URL:         url,
		Opts:        opts,
		echo:        e.echo,
		muted:       opts.Muted,
		playing:     opts.Autoplay,
		subs:        make(map[int]func(Event)),
	}
	e.instances = append(e.instances, inst)
	return inst, nil
}

// Instances returns every instance spawned so far, closed ones included.
func (e *MemoryEngine) Instances() []*MemoryInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*MemoryInstance(nil), e.instances...)
}

// Live returns the open instances for containerID.
func (e *MemoryEngine) Live(containerID string) []*MemoryInstance {
	var out []*MemoryInstance
	for _, inst := range e.Instances() {
		if inst.ContainerID == containerID && !inst.Closed() {
			out = append(out, inst)
		}
	}
	return out
}

type MemoryInstance struct {
	ContainerID string
	URL         string
	Opts        SpawnOptions

	mu      sync.Mutex
	echo    bool
	playing bool
	muted   bool
	percent float64
	closed  bool
	calls   []string
	subs    map[int]func(Event)
	nextSub int
}

func (i *MemoryInstance) record(call string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, call)
	return i.echo && !i.closed
}

func (i *MemoryInstance) Play() error {
	echo := i.record("play")
	i.mu.Lock()
	i.playing = true
	i.mu.Unlock()
	if echo {
		i.Emit(Event{Type: EventPlay})
	}
	return nil
}

func (i *MemoryInstance) Pause() error {
	echo := i.record("pause")
	i.mu.Lock()
	i.playing = false
	i.mu.Unlock()
	if echo {
		i.Emit(Event{Type: EventPause})
	}
	return nil
}

func (i *MemoryInstance) SetMuted(muted bool) error {
	echo := i.record(fmt.Sprintf("mute=%t", muted))
	i.mu.Lock()
	i.muted = muted
	i.mu.Unlock()
	if echo {
		i.Emit(Event{Type: EventMute, Muted: muted})
	}
	return nil
}

func (i *MemoryInstance) Seek(percent float64) error {
	i.record(fmt.Sprintf("seek=%g", percent))
	i.mu.Lock()
	i.percent = percent
	i.mu.Unlock()
	return nil
}

func (i *MemoryInstance) Subscribe(fn func(Event)) func() {
	i.mu.Lock()
	id := i.nextSub
	i.nextSub++
	i.subs[id] = fn
	i.mu.Unlock()
	return func() {
		i.mu.Lock()
		delete(i.subs, id)
		i.mu.Unlock()
	}
}

func (i *MemoryInstance) Close() error {
	i.record("close")
	i.mu.Lock()
	i.closed = true
	i.playing = false
	i.mu.Unlock()
	return nil
}

// Emit delivers ev to every subscriber, as the engine would.
func (i *MemoryInstance) Emit(ev Event) {
	i.mu.Lock()
	subs := make([]func(Event), 0, len(i.subs))
	for _, fn := range i.subs {
		subs = append(subs, fn)
	}
	i.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (i *MemoryInstance) Calls() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.calls...)
}

func (i *MemoryInstance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

func (i *MemoryInstance) Muted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.muted
}

func (i *MemoryInstance) Playing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.playing
}

func (i *MemoryInstance) Subscribers() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.subs)
}
