package transport

import (
	"bytes"
	"testing"
	"time"
)

func TestPipeDeliversBothDirections(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	want0 := []byte("from zero")
	if _, err := p.Conn0().Write(want0); err != nil {
		t.Fatalf("Conn0 Write() error = %v", err)
	}
	want1 := []byte("from one")
	if _, err := p.Conn1().Write(want1); err != nil {
		t.Fatalf("Conn1 Write() error = %v", err)
	}

	p.Drain()

	buf := make([]byte, 64)
	p.Conn1().SetReadDeadline(time.Now().Add(time.Second))
	n, err := p.Conn1().Read(buf)
	if err != nil {
		t.Fatalf("Conn1 Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], want0) {
		t.Errorf("Conn1 read %q, want %q", buf[:n], want0)
	}

	p.Conn0().SetReadDeadline(time.Now().Add(time.Second))
	n, err = p.Conn0().Read(buf)
	if err != nil {
		t.Fatalf("Conn0 Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], want1) {
		t.Errorf("Conn0 read %q, want %q", buf[:n], want1)
	}
}

func TestPipeAutoTick(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	want := []byte{0xAB}
	if _, err := p.Conn0().Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// No explicit Drain; the background ticker must deliver.
	buf := make([]byte, 8)
	p.Conn1().SetReadDeadline(time.Now().Add(time.Second))
	n, err := p.Conn1().Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("read %x, want %x", buf[:n], want)
	}
}

func TestPipeCloseIdempotent(t *testing.T) {
	p := NewPipe()
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != ErrClosed {
		t.Errorf("second Close() error = %v, want %v", err, ErrClosed)
	}
}
