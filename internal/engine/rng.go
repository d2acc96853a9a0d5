package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// Stream produces provably-fair floats for one (server seed, client seed, nonce) triple.
// Bytes come from HMAC-SHA256(serverSeed, "clientSeed:nonce:round"), 32 bytes per round.
type Stream struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	pos        int
	buffer     [32]byte
}

// NewStream creates a stream positioned at the first byte of round 0.
func NewStream(serverSeed, clientSeed string, nonce uint64) *Stream {
	s := &Stream{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
	s.fill()
	return s
}

func (s *Stream) next() byte {
	if s.pos >= len(s.buffer) {
		s.round++
		s.pos = 0
		s.fill()
	}
	b := s.buffer[s.pos]
	s.pos++
	return b
}

// Float consumes 4 bytes and returns a float in [0, 1).
func (s *Stream) Float() float64 {
	return bytesToFloat([4]byte{s.next(), s.next(), s.next(), s.next()})
}

func (s *Stream) fill() {
	h := hmac.New(sha256.New, []byte(s.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", s.clientSeed, s.nonce, s.round)
	copy(s.buffer[:], h.Sum(nil))
}

// bytesToFloat sums b[i] / 256^(i+1).
func bytesToFloat(b [4]byte) float64 {
	result := 0.0
	divider := 1.0
	for _, v := range b {
		divider *= 256
		result += float64(v) / divider
	}
	return result
}

// Floats returns count floats for the triple, starting at the first byte.
func Floats(serverSeed, clientSeed string, nonce uint64, count int) []float64 {
	if count <= 0 {
		return nil
	}
	s := NewStream(serverSeed, clientSeed, nonce)
	out := make([]float64, count)
	for i := range out {
		out[i] = s.Float()
	}
	return out
}
