package player

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const ipcWriteTimeout = 2 * time.Second

var observedProperties = []string{"pause", "mute", "percent-pos", "eof-reached"}

type ipcRequest struct {
	Command   []interface{} `json:"command"`
	RequestID int64         `json:"request_id"`
}

// ipcMessage is either a reply (RequestID set) or an event pushed by mpv.
type ipcMessage struct {
	Event     string          `json:"event,omitempty"`
	Name      string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID int64           `json:"request_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FileError string          `json:"file_error,omitempty"`
}

type ipcConn struct {
	conn net.Conn

	mu     sync.Mutex
	nextID int64
}

func newIPCConn(conn net.Conn) *ipcConn {
	return &ipcConn{conn: conn}
}

// send writes one command line. Replies arrive on the read loop and are not awaited.
func (c *ipcConn) send(args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	data, err := json.Marshal(ipcRequest{Command: args, RequestID: c.nextID})
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(ipcWriteTimeout))
	_, err = c.conn.Write(append(data, '\n'))
	return err
}

// read blocks until the connection closes, handing every decoded line to fn.
func (c *ipcConn) read(fn func(ipcMessage)) error {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		fn(msg)
	}
	err := scanner.Err()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *ipcConn) Close() error {
	return c.conn.Close()
}

func (m ipcMessage) toEvent(sawFrame *bool) (Event, bool) {
	switch m.Event {
	case "file-loaded":
		return Event{Type: EventReady}, true
	case "playback-restart":
		if *sawFrame {
			return Event{}, false
		}
		*sawFrame = true
		return Event{Type: EventFirstFrame}, true
	case "end-file":
		if m.Reason != "error" {
			return Event{}, false
		}
		return Event{Type: EventError, Err: errors.New("mpv: " + m.FileError)}, true
	case "property-change":
		return m.propertyEvent()
	}
	return Event{}, false
}

func (m ipcMessage) propertyEvent() (Event, bool) {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return Event{}, false
	}
	switch m.Name {
	case "pause":
		var paused bool
		if json.Unmarshal(m.Data, &paused) != nil {
			return Event{}, false
		}
		if paused {
			return Event{Type: EventPause}, true
		}
		return Event{Type: EventPlay}, true
	case "mute":
		var muted bool
		if json.Unmarshal(m.Data, &muted) != nil {
			return Event{}, false
		}
		return Event{Type: EventMute, Muted: muted}, true
	case "percent-pos":
		var pct float64
		if json.Unmarshal(m.Data, &pct) != nil {
			return Event{}, false
		}
		return Event{Type: EventTime, Percent: pct}, true
	case "eof-reached":
		var eof bool
		if json.Unmarshal(m.Data, &eof) != nil || !eof {
			return Event{}, false
		}
		return Event{Type: EventComplete}, true
	}
	return Event{}, false
}
