package player

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"reels/internal/config"
	"reels/internal/logging"
)

var mpvPath string

func init() {
	mpvPath = findMPVPath()
}

func findMPVPath() string {
	candidates := []string{
		filepath.Join(os.Getenv("HOME"), "Applications/mpv.app/Contents/MacOS/mpv"),
		"/Applications/mpv.app/Contents/MacOS/mpv",
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if path, err := exec.LookPath("mpv"); err == nil {
		return path
	}
	return ""
}

func Available() bool {
	return mpvPath != ""
}

// MPV is an Engine that runs one mpv process per instance and drives it over JSON IPC.
type MPV struct {
	path      string
	socketDir string
}

func NewMPV() *MPV {
	return &MPV{path: mpvPath, socketDir: os.TempDir()}
}

func (m *MPV) Ready() error {
	if m.path == "" {
		return exec.ErrNotFound
	}
	return nil
}

func (m *MPV) Spawn(ctx context.Context, containerID, url string, opts SpawnOptions) (Instance, error) {
	if err := m.Ready(); err != nil {
		return nil, &EngineNotReadyError{Err: err}
	}

	socket := filepath.Join(m.socketDir, fmt.Sprintf("reels-%s-%s.sock", containerID, uuid.NewString()[:8]))
	args := buildMPVArgs(socket, url, opts)
	logging.MPV(m.path, args)

	cmd := exec.Command(m.path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	conn, err := dialIPC(ctx, socket)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = os.Remove(socket)
		return nil, &EngineNotReadyError{Err: err}
	}

	inst := newMPVInstance(cmd, newIPCConn(conn), socket)
	go inst.wait()
	go inst.readLoop()
	if err := inst.observe(); err != nil {
		_ = inst.Close()
		return nil, fmt.Errorf("observe mpv properties: %w", err)
	}
	return inst, nil
}

func buildMPVArgs(socket, url string, opts SpawnOptions) []string {
	args := []string{
		"--input-ipc-server=" + socket,
		"--hwdec=auto",
		"--force-window=yes",
		"--keep-open=yes",
		"--no-terminal",
		"--autofit=540x960",
	}
	if opts.Title != "" {
		args = append(args, "--title="+opts.Title)
	}
	if opts.Muted {
		args = append(args, "--mute=yes")
	}
	if !opts.Autoplay {
		args = append(args, "--pause")
	}
	return append(args, url)
}

// mpv creates the socket a little after the process starts, so poll for it.
func dialIPC(ctx context.Context, socket string) (net.Conn, error) {
	var d net.Dialer
	var lastErr error
	for attempt := 0; attempt < config.EngineReadyAttempts; attempt++ {
		conn, err := d.DialContext(ctx, "unix", socket)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(config.EngineReadyPoll):
		}
	}
	return nil, fmt.Errorf("mpv ipc %s: %w", socket, lastErr)
}

type mpvInstance struct {
	cmd    *exec.Cmd
	ipc    *ipcConn
	socket string
	done   chan struct{}

	mu       sync.Mutex
	subs     map[int]func(Event)
	nextSub  int
	sawFrame bool
	closed   bool

	closeOnce sync.Once
}

func newMPVInstance(cmd *exec.Cmd, ipc *ipcConn, socket string) *mpvInstance {
	return &mpvInstance{
		cmd:    cmd,
		ipc:    ipc,
		socket: socket,
		done:   make(chan struct{}),
		subs:   make(map[int]func(Event)),
	}
}

func (p *mpvInstance) Play() error {
	return p.ipc.send("set_property", "pause", false)
}

func (p *mpvInstance) Pause() error {
	return p.ipc.send("set_property", "pause", true)
}

func (p *mpvInstance) SetMuted(muted bool) error {
	return p.ipc.send("set_property", "mute", muted)
}

func (p *mpvInstance) Seek(percent float64) error {
	return p.ipc.send("seek", percent, "absolute-percent")
}

func (p *mpvInstance) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *mpvInstance) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		_ = p.ipc.send("quit")
		_ = p.ipc.Close()

		if p.cmd != nil && p.cmd.Process != nil {
			select {
			case <-p.done:
			case <-time.After(2 * time.Second):
				_ = p.cmd.Process.Kill()
			}
		}
		_ = os.Remove(p.socket)
	})
	return nil
}

func (p *mpvInstance) observe() error {
	for i, name := range observedProperties {
		if err := p.ipc.send("observe_property", i+1, name); err != nil {
			return err
		}
	}
	return nil
}

func (p *mpvInstance) wait() {
	if p.cmd != nil {
		_ = p.cmd.Wait()
	}
	close(p.done)
}

func (p *mpvInstance) readLoop() {
	err := p.ipc.read(p.handle)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	// 窗口被用户关掉或进程崩溃
	if err == nil {
		err = fmt.Errorf("mpv exited")
	}
	p.emit(Event{Type: EventError, Err: err})
}

func (p *mpvInstance) handle(msg ipcMessage) {
	if ev, ok := msg.toEvent(&p.sawFrame); ok {
		p.emit(ev)
	}
}

func (p *mpvInstance) emit(ev Event) {
	p.mu.Lock()
	subs := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
