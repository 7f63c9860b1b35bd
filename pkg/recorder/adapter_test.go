package recorder

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/studiokit/devicelab/pkg/devicemodel"
	"github.com/studiokit/devicelab/pkg/endpoint"
)

// spyRecorder counts playhead mutations on top of the memory model.
type spyRecorder struct {
	*devicemodel.MemoryRecorder
	nextCalls int
	prevCalls int
}

func (s *spyRecorder) NextClip() int {
	s.nextCalls++
	return s.MemoryRecorder.NextClip()
}

func (s *spyRecorder) PreviousClip() int {
	s.prevCalls++
	return s.MemoryRecorder.PreviousClip()
}

// testClient is a line-oriented client for one recorder connection.
type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func connect(t *testing.T, model devicemodel.Recorder) *testClient {
	t.Helper()

	a, err := New(Config{Model: model})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bound, err := a.Start(endpoint.Endpoint{Address: "127.0.0.1", Port: 0}, false)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { a.Stop() })

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", bound.Port))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) sendLine(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", line); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// readBlock reads a multi-line response terminated by a blank line.
func (c *testClient) readBlock(t *testing.T) []string {
	t.Helper()
	var lines []string
	for {
		line := c.readLine(t)
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestGreetingOnConnect(t *testing.T) {
	c := connect(t, devicemodel.NewMemoryRecorder())

	block := c.readBlock(t)
	if len(block) == 0 || block[0] != "500 connection info:" {
		t.Fatalf("greeting = %v, want 500 connection info block", block)
	}
	joined := strings.Join(block, "\n")
	if !strings.Contains(joined, "protocol version:") || !strings.Contains(joined, "model:") {
		t.Errorf("greeting missing identity fields: %v", block)
	}
}

func TestPingAndUnknownCommand(t *testing.T) {
	c := connect(t, devicemodel.NewMemoryRecorder())
	c.readBlock(t) // greeting

	c.sendLine(t, "ping")
	if got := c.readLine(t); got != "200 ok" {
		t.Errorf("ping reply = %q, want %q", got, "200 ok")
	}

	c.sendLine(t, "frobnicate")
	if got := c.readLine(t); got != "400 invalid command" {
		t.Errorf("unknown reply = %q, want %q", got, "400 invalid command")
	}

	// Line endings: a bare LF terminator works too.
	if _, err := c.conn.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := c.readLine(t); got != "200 ok" {
		t.Errorf("LF-terminated ping reply = %q, want %q", got, "200 ok")
	}
}

func TestTransportInfo(t *testing.T) {
	c := connect(t, devicemodel.NewMemoryRecorder())
	c.readBlock(t)

	c.sendLine(t, "transport info")
	block := c.readBlock(t)
	if len(block) == 0 || block[0] != "208 transport info:" {
		t.Fatalf("reply = %v, want 208 transport info block", block)
	}
	joined := strings.Join(block, "\n")
	for _, field := range []string{"status: preview", "slot id: 1", "clip id: 1"} {
		if !strings.Contains(joined, field) {
			t.Errorf("transport info missing %q: %v", field, block)
		}
	}
}

func TestClipsGet(t *testing.T) {
	model := devicemodel.NewMemoryRecorder()
	c := connect(t, model)
	c.readBlock(t)

	c.sendLine(t, "clips get")
	block := c.readBlock(t)
	want := fmt.Sprintf("clip count: %d", len(model.Clips()))
	if len(block) < 2 || block[0] != "205 clips info:" || block[1] != want {
		t.Fatalf("reply = %v, want clips block with %q", block, want)
	}
}

func TestSlotSelect(t *testing.T) {
	c := connect(t, devicemodel.NewMemoryRecorder())
	c.readBlock(t)

	c.sendLine(t, "slot select 2")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("slot select reply = %q, want 200 ok", got)
	}

	c.sendLine(t, "slot info")
	block := c.readBlock(t)
	if !strings.Contains(strings.Join(block, "\n"), "slot id: 2") {
		t.Errorf("slot info after select = %v, want slot id: 2", block)
	}

	c.sendLine(t, "slot select 9")
	if got := c.readLine(t); got != "400 invalid command" {
		t.Errorf("bad slot reply = %q, want 400 invalid command", got)
	}
}

func TestGotoClipStepsPlayhead(t *testing.T) {
	model := &spyRecorder{MemoryRecorder: devicemodel.NewMemoryRecorder()}
	c := connect(t, model)
	c.readBlock(t)

	// Move to clip 2 first.
	c.sendLine(t, "goto clip id:2")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("goto reply = %q, want 200 ok", got)
	}
	model.nextCalls = 0
	model.prevCalls = 0

	c.sendLine(t, "goto clip id:5")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("goto reply = %q, want 200 ok", got)
	}

	if model.nextCalls != 3 {
		t.Errorf("NextClip calls = %d, want exactly 3", model.nextCalls)
	}
	if model.prevCalls != 0 {
		t.Errorf("PreviousClip calls = %d, want 0", model.prevCalls)
	}
	if got := model.CurrentClip(); got != 5 {
		t.Errorf("current clip = %d, want 5", got)
	}
}

func TestNotifyPushesTransportBlock(t *testing.T) {
	c := connect(t, devicemodel.NewMemoryRecorder())
	c.readBlock(t)

	c.sendLine(t, "notify transport:true")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("notify reply = %q, want 200 ok", got)
	}

	c.sendLine(t, "play")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("play reply = %q, want 200 ok", got)
	}
	block := c.readBlock(t)
	if len(block) == 0 || block[0] != "508 transport info:" {
		t.Fatalf("push = %v, want 508 transport info block", block)
	}
	if !strings.Contains(strings.Join(block, "\n"), "status: play") {
		t.Errorf("pushed block missing play status: %v", block)
	}

	// Disable notifications: no push after the reply.
	c.sendLine(t, "notify transport:false")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("notify off reply = %q, want 200 ok", got)
	}
	c.sendLine(t, "stop")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("stop reply = %q, want 200 ok", got)
	}
	c.sendLine(t, "ping")
	if got := c.readLine(t); got != "200 ok" {
		t.Errorf("reply after stop = %q, want immediate 200 ok (no push)", got)
	}
}

func TestRecordCreatesClip(t *testing.T) {
	model := devicemodel.NewMemoryRecorder()
	before := len(model.Clips())
	c := connect(t, model)
	c.readBlock(t)

	c.sendLine(t, "record")
	if got := c.readLine(t); got != "200 ok" {
		t.Fatalf("record reply = %q, want 200 ok", got)
	}

	if got := len(model.Clips()); got != before+1 {
		t.Errorf("clip count = %d, want %d", got, before+1)
	}
	if got := model.TransportStatus().Mode; got != devicemodel.TransportRecord {
		t.Errorf("mode = %q, want %q", got, devicemodel.TransportRecord)
	}
}
