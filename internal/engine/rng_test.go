package engine

import (
	"testing"
)

func TestFloats(t *testing.T) {
	tests := []struct {
		name    string
		nonce   uint64
		count   int
		wantLen int
	}{
		{name: "single float", nonce: 1, count: 1, wantLen: 1},
		{name: "one banknote round", nonce: 1, count: 10, wantLen: 10},
		{name: "crosses hmac round boundary", nonce: 7, count: 20, wantLen: 20},
		{name: "zero count", nonce: 1, count: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats("test_server_seed", "test_client_seed", tt.nonce, tt.count)
			if len(floats) != tt.wantLen {
				t.Fatalf("Floats() returned %d floats, want %d", len(floats), tt.wantLen)
			}
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("float %d out of range [0, 1): %f", i, f)
				}
			}
		})
	}
}

func TestFloatsDeterministic(t *testing.T) {
	a := Floats("server", "client", 3, 16)
	b := Floats("server", "client", 3, 16)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("float %d differs between identical streams: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestFloatsVaryWithNonce(t *testing.T) {
	a := Floats("server", "client", 1, 8)
	b := Floats("server", "client", 2, 8)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different floats for different nonces")
	}
}

func TestStreamMatchesFloats(t *testing.T) {
	s := NewStream("server", "client", 5)
	want := Floats("server", "client", 5, 12)
	for i, w := range want {
		if got := s.Float(); got != w {
			t.Fatalf("float %d: stream gave %f, Floats gave %f", i, got, w)
		}
	}
}

func TestBytesToFloat(t *testing.T) {
	if got := bytesToFloat([4]byte{0, 0, 0, 0}); got != 0 {
		t.Errorf("zero bytes: got %f, want 0", got)
	}
	if got := bytesToFloat([4]byte{128, 0, 0, 0}); got != 0.5 {
		t.Errorf("0x80 lead byte: got %f, want 0.5", got)
	}
	if got := bytesToFloat([4]byte{255, 255, 255, 255}); got >= 1 {
		t.Errorf("max bytes must stay below 1, got %f", got)
	}
}
