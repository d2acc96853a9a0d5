package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
)

var testSeeds = banknotes.Seeds{Server: "server_seed_example", Client: "client_seed_example"}

// bruteForce is the single-threaded reference for Scan.
func bruteForce(req Request) []Hit {
	var out []Hit
	for n := req.NonceStart; n <= req.NonceEnd; n++ {
		notes := banknotes.Deal(req.Seeds, n, banknotes.RoundSize)
		if sum := banknotes.Sum(notes); req.matches(sum) {
			out = append(out, Hit{Nonce: n, Sum: sum, Notes: notes})
		}
	}
	return out
}

func TestScanMatchesBruteForce(t *testing.T) {
	s := NewScanner()
	s.batchSize = 97

	ops := []Request{
		{TargetOp: OpGreaterEqual, TargetVal: 8000},
		{TargetOp: OpLess, TargetVal: 1500},
		{TargetOp: OpBetween, TargetVal: 4000, TargetVal2: 4500},
		{TargetOp: OpOutside, TargetVal: 1000, TargetVal2: 12000},
		{TargetOp: OpEqual, TargetVal: 3460},
	}
	for _, req := range ops {
		req.Seeds = testSeeds
		req.NonceStart = 1
		req.NonceEnd = 2000
		req.Limit = MaxLimit

		res, err := s.Scan(context.Background(), req)
		if err != nil {
			t.Fatalf("%s: Scan: %v", req.TargetOp, err)
		}
		want := bruteForce(req)
		if len(res.Hits) != len(want) {
			t.Fatalf("%s: got %d hits, want %d", req.TargetOp, len(res.Hits), len(want))
		}
		for i := range want {
			if res.Hits[i].Nonce != want[i].Nonce || res.Hits[i].Sum != want[i].Sum {
				t.Fatalf("%s: hit %d = %+v, want %+v", req.TargetOp, i, res.Hits[i], want[i])
			}
		}
		if res.Summary.TotalEvaluated != 2000 {
			t.Errorf("%s: evaluated %d", req.TargetOp, res.Summary.TotalEvaluated)
		}
		if res.ServerSeedHash != banknotes.HashServerSeed(testSeeds.Server) {
			t.Errorf("%s: unexpected hash", req.TargetOp)
		}
	}
}

func TestScanLimitKeepsLowestNonces(t *testing.T) {
	req := Request{
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   500,
		TargetOp:   OpGreater,
		TargetVal:  0,
		Limit:      10,
	}
	res, err := NewScanner().Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Hits) != 10 {
		t.Fatalf("got %d hits", len(res.Hits))
	}
	for i, h := range res.Hits {
		if h.Nonce != uint64(i+1) {
			t.Errorf("hit %d nonce = %d", i, h.Nonce)
		}
	}
	if res.Summary.HitsFound != 500 {
		t.Errorf("HitsFound = %d, want 500", res.Summary.HitsFound)
	}
	if res.Summary.MinSum > res.Summary.MaxSum || res.Summary.MeanSum < float64(res.Summary.MinSum) {
		t.Errorf("inconsistent summary: %+v", res.Summary)
	}
}

func TestScanDefaultLimitBoundsHits(t *testing.T) {
	res, err := NewScanner().Scan(context.Background(), Request{
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   3000,
		TargetOp:   OpGreaterEqual,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Hits) != DefaultLimit {
		t.Fatalf("got %d hits, want %d", len(res.Hits), DefaultLimit)
	}
	if last := res.Hits[len(res.Hits)-1].Nonce; last != DefaultLimit {
		t.Errorf("last kept nonce = %d, want %d", last, DefaultLimit)
	}
	if res.Summary.HitsFound != 3000 {
		t.Errorf("HitsFound = %d, want 3000", res.Summary.HitsFound)
	}
	if res.Echo.Limit != DefaultLimit {
		t.Errorf("echoed limit = %d", res.Echo.Limit)
	}
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{25, 25},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := EffectiveLimit(tt.in); got != tt.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScanValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing seed", Request{NonceStart: 1, NonceEnd: 2, TargetOp: OpEqual}, ErrMissingSeed},
		{"zero start", Request{Seeds: testSeeds, NonceStart: 0, NonceEnd: 2, TargetOp: OpEqual}, ErrInvalidRange},
		{"reversed", Request{Seeds: testSeeds, NonceStart: 5, NonceEnd: 2, TargetOp: OpEqual}, ErrInvalidRange},
		{"too large", Request{Seeds: testSeeds, NonceStart: 1, NonceEnd: MaxRange + 1, TargetOp: OpEqual}, ErrRangeTooLarge},
		{"bad op", Request{Seeds: testSeeds, NonceStart: 1, NonceEnd: 2, TargetOp: "near"}, ErrInvalidTarget},
		{"bad between", Request{Seeds: testSeeds, NonceStart: 1, NonceEnd: 2, TargetOp: OpBetween, TargetVal: 5, TargetVal2: 1}, ErrInvalidTarget},
	}
	for _, tt := range tests {
		if _, err := NewScanner().Scan(context.Background(), tt.req); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewScanner().Scan(ctx, Request{
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   MaxRange,
		TargetOp:   OpGreater,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Summary.TimedOut {
		t.Error("expected TimedOut for a cancelled context")
	}
	if res.Summary.TotalEvaluated >= MaxRange {
		t.Errorf("cancelled scan evaluated the whole range")
	}
}
