package endpoint

import (
	"errors"
	"net"
	"testing"
)

func TestCandidates(t *testing.T) {
	desired := Endpoint{Transport: TransportDatagram, Address: "203.0.113.5", Port: 9910}

	t.Run("fallback allowed", func(t *testing.T) {
		cands := candidates(desired, true)
		if len(cands) != 3 {
			t.Fatalf("candidates() len = %d, want 3", len(cands))
		}
		if cands[0] != desired {
			t.Errorf("candidates()[0] = %v, want %v", cands[0], desired)
		}
		if cands[1].Address != FallbackAddress || cands[1].Port != 9910 {
			t.Errorf("candidates()[1] = %v, want loopback same port", cands[1])
		}
		if cands[2].Address != FallbackAddress || cands[2].Port != 9910+FallbackPortOffset {
			t.Errorf("candidates()[2] = %v, want loopback port+%d", cands[2], FallbackPortOffset)
		}
	})

	t.Run("fallback disabled", func(t *testing.T) {
		cands := candidates(desired, false)
		if len(cands) != 1 || cands[0] != desired {
			t.Errorf("candidates() = %v, want only desired", cands)
		}
	})
}

func TestBindFallbackToLoopback(t *testing.T) {
	// 203.0.113.0/24 is TEST-NET-3; binding it locally fails with
	// address-not-available, which must advance the fallback chain.
	a := NewAllocator(AllocatorConfig{})
	desired := Endpoint{Transport: TransportDatagram, Address: "203.0.113.5", Port: 9910}

	binding, err := a.Bind(desired, true)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer binding.Close()

	if !binding.UsedFallback {
		t.Error("Bind() UsedFallback = false, want true")
	}
	if binding.Endpoint.Address != FallbackAddress {
		t.Errorf("Bind() address = %s, want %s", binding.Endpoint.Address, FallbackAddress)
	}
	if binding.Endpoint.Port != 9910 {
		t.Errorf("Bind() port = %d, want 9910", binding.Endpoint.Port)
	}
	if binding.PacketConn == nil {
		t.Error("Bind() PacketConn is nil for datagram endpoint")
	}
}

func TestBindNoFallback(t *testing.T) {
	a := NewAllocator(AllocatorConfig{})
	desired := Endpoint{Transport: TransportDatagram, Address: "203.0.113.5", Port: 9910}

	binding, err := a.Bind(desired, false)
	if err == nil {
		binding.Close()
		t.Fatal("Bind() succeeded on unreachable address with fallback disabled")
	}
}

func TestBindPortInUse(t *testing.T) {
	// Occupy a loopback port, then ask for it with fallback allowed: the
	// allocator must land on the port+offset candidate.
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer occupied.Close()
	port := occupied.LocalAddr().(*net.UDPAddr).Port

	a := NewAllocator(AllocatorConfig{})
	desired := Endpoint{Transport: TransportDatagram, Address: "127.0.0.1", Port: port}

	binding, err := a.Bind(desired, true)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer binding.Close()

	if !binding.UsedFallback {
		t.Error("Bind() UsedFallback = false, want true")
	}
	if binding.Endpoint.Port != port+FallbackPortOffset {
		t.Errorf("Bind() port = %d, want %d", binding.Endpoint.Port, port+FallbackPortOffset)
	}
}

func TestBindStream(t *testing.T) {
	a := NewAllocator(AllocatorConfig{})
	desired := Endpoint{Transport: TransportStream, Address: "127.0.0.1", Port: 0}

	binding, err := a.Bind(desired, false)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer binding.Close()

	if binding.Listener == nil {
		t.Error("Bind() Listener is nil for stream endpoint")
	}
	if binding.UsedFallback {
		t.Error("Bind() UsedFallback = true on direct bind")
	}
	if binding.Endpoint.Port == 0 {
		t.Error("Bind() did not resolve ephemeral port")
	}
}

func TestBindAbortsOnFatalError(t *testing.T) {
	fatal := errors.New("permission denied")
	attempts := 0
	a := NewAllocator(AllocatorConfig{
		ListenPacket: func(network, address string) (net.PacketConn, error) {
			attempts++
			return nil, fatal
		},
	})

	desired := Endpoint{Transport: TransportDatagram, Address: "10.0.0.1", Port: 9910}
	_, err := a.Bind(desired, true)
	if !errors.Is(err, fatal) {
		t.Fatalf("Bind() error = %v, want %v", err, fatal)
	}
	if attempts != 1 {
		t.Errorf("Bind() attempts = %d, want 1 (no fallback after fatal error)", attempts)
	}
}

func TestBindInvalidTransport(t *testing.T) {
	a := NewAllocator(AllocatorConfig{})
	_, err := a.Bind(Endpoint{Address: "127.0.0.1", Port: 1}, false)
	if err != ErrInvalidTransport {
		t.Errorf("Bind() error = %v, want %v", err, ErrInvalidTransport)
	}
}
