package player

import (
	"bufio"
	"encoding/json"
	"net"
	"slices"
	"testing"
)

func TestBuildMPVArgs(t *testing.T) {
	args := buildMPVArgs("/tmp/reels-x.sock", "https://cdn.example/x.mp4", SpawnOptions{Title: "X", Muted: true})

	for _, want := range []string{"--input-ipc-server=/tmp/reels-x.sock", "--mute=yes", "--pause", "--title=X", "--keep-open=yes"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-1] != "https://cdn.example/x.mp4" {
		t.Errorf("url should be last, got %v", args)
	}

	args = buildMPVArgs("/tmp/s", "u", SpawnOptions{Autoplay: true})
	if slices.Contains(args, "--pause") || slices.Contains(args, "--mute=yes") {
		t.Errorf("autoplay unmuted spawn got %v", args)
	}
}

func TestIPCMessageToEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
		ok   bool
	}{
		{"loaded", `{"event":"file-loaded"}`, Event{Type: EventReady}, true},
		{"unpaused", `{"event":"property-change","id":1,"name":"pause","data":false}`, Event{Type: EventPlay}, true},
		{"paused", `{"event":"property-change","id":1,"name":"pause","data":true}`, Event{Type: EventPause}, true},
		{"muted", `{"event":"property-change","id":2,"name":"mute","data":true}`, Event{Type: EventMute, Muted: true}, true},
		{"percent", `{"event":"property-change","id":3,"name":"percent-pos","data":37.5}`, Event{Type: EventTime, Percent: 37.5}, true},
		{"percent unavailable", `{"event":"property-change","id":3,"name":"percent-pos","data":null}`, Event{}, false},
		{"eof", `{"event":"property-change","id":4,"name":"eof-reached","data":true}`, Event{Type: EventComplete}, true},
		{"not eof", `{"event":"property-change","id":4,"name":"eof-reached","data":false}`, Event{}, false},
		{"normal end", `{"event":"end-file","reason":"eof"}`, Event{}, false},
		{"reply", `{"request_id":3,"error":"success"}`, Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg ipcMessage
			if err := json.Unmarshal([]byte(tt.line), &msg); err != nil {
				t.Fatal(err)
			}
			saw := false
			got, ok := msg.toEvent(&saw)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("toEvent = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIPCFirstFrameOnce(t *testing.T) {
	msg := ipcMessage{Event: "playback-restart"}
	saw := false
	if ev, ok := msg.toEvent(&saw); !ok || ev.Type != EventFirstFrame {
		t.Fatalf("first restart = %+v, %v", ev, ok)
	}
	if _, ok := msg.toEvent(&saw); ok {
		t.Fatal("seeks must not report another first frame")
	}

	failed := ipcMessage{Event: "end-file", Reason: "error", FileError: "loading failed"}
	ev, ok := failed.toEvent(&saw)
	if !ok || ev.Type != EventError || ev.Err == nil {
		t.Fatalf("end-file error = %+v, %v", ev, ok)
	}
}

func TestIPCConnSend(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := newIPCConn(client)
	defer conn.Close()

	lines := make(chan string, 2)
	go func() {
		scanner := bufio.NewScanner(server)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	if err := conn.send("set_property", "pause", true); err != nil {
		t.Fatal(err)
	}
	if err := conn.send("seek", 0, "absolute-percent"); err != nil {
		t.Fatal(err)
	}

	var first, second ipcRequest
	if err := json.Unmarshal([]byte(<-lines), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(<-lines), &second); err != nil {
		t.Fatal(err)
	}
	if first.RequestID != 1 || second.RequestID != 2 {
		t.Fatalf("request ids = %d, %d", first.RequestID, second.RequestID)
	}
	if first.Command[0] != "set_property" || first.Command[2] != true {
		t.Fatalf("command = %v", first.Command)
	}
}

func TestIPCConnRead(t *testing.T) {
	client, server := net.Pipe()
	conn := newIPCConn(client)

	go func() {
		_, _ = server.Write([]byte("{\"event\":\"file-loaded\"}\nnot json\n{\"event\":\"property-change\",\"name\":\"mute\",\"data\":false}\n"))
		_ = server.Close()
	}()

	var got []string
	if err := conn.read(func(m ipcMessage) { got = append(got, m.Event) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !slices.Equal(got, []string{"file-loaded", "property-change"}) {
		t.Fatalf("events = %v", got)
	}
}
