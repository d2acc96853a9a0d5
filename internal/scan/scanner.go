// Package scan searches a nonce range of a seed pair for deals whose total matches a
// target condition.
package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
)

var (
	ErrInvalidRange  = errors.New("invalid nonce range")
	ErrRangeTooLarge = errors.New("nonce range too large")
	ErrInvalidTarget = errors.New("invalid target")
	ErrMissingSeed   = errors.New("server seed is required")
)

const (
	// MaxRange caps the number of nonces a single scan evaluates.
	MaxRange = 1_000_000
	// DefaultLimit applies when a request sets no limit; MaxLimit caps any limit.
	DefaultLimit = 1000
	MaxLimit     = 10_000
)

// TargetOp compares a deal's total against the target.
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

type Request struct {
	Seeds      banknotes.Seeds `json:"seeds"`
	NonceStart uint64          `json:"nonceStart"`
	NonceEnd   uint64          `json:"nonceEnd"`
	TargetOp   TargetOp        `json:"targetOp"`
	TargetVal  int             `json:"targetVal"`
	TargetVal2 int             `json:"targetVal2,omitempty"` // for "between" and "outside"
	Limit      int             `json:"limit,omitempty"` // 0 means DefaultLimit
	TimeoutMs  int             `json:"timeoutMs,omitempty"`
}

// Hit is one matching deal.
type Hit struct {
	Nonce uint64 `json:"nonce"`
	Sum   int    `json:"sum"`
	Notes []int  `json:"notes"`
}

type Summary struct {
	TotalEvaluated uint64  `json:"totalEvaluated"`
	HitsFound      int     `json:"hitsFound"`
	MinSum         int     `json:"minSum"`
	MaxSum         int     `json:"maxSum"`
	MeanSum        float64 `json:"meanSum"`
	TimedOut       bool    `json:"timedOut,omitempty"`
}

// Result holds the hits in nonce order, truncated to Limit.
type Result struct {
	Hits           []Hit   `json:"hits"`
	Summary        Summary `json:"summary"`
	ServerSeedHash string  `json:"serverSeedHash"`
	Echo           Request `json:"echo"`
}

type job struct {
	start, end uint64
}

// Scanner fans nonce batches out to a pool with a worker per CPU.
type Scanner struct {
	workerCount int
	batchSize   uint64
}

func NewScanner() *Scanner {
	return &Scanner{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   4096,
	}
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Seeds.Server) == "" {
		return ErrMissingSeed
	}
	if r.NonceStart == 0 || r.NonceEnd < r.NonceStart {
		return ErrInvalidRange
	}
	if r.NonceEnd-r.NonceStart >= MaxRange {
		return ErrRangeTooLarge
	}
	switch r.TargetOp {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
	case OpBetween, OpOutside:
		if r.TargetVal2 < r.TargetVal {
			return ErrInvalidTarget
		}
	default:
		return ErrInvalidTarget
	}
	return nil
}

func (r Request) matches(sum int) bool {
	switch r.TargetOp {
	case OpEqual:
		return sum == r.TargetVal
	case OpGreater:
		return sum > r.TargetVal
	case OpGreaterEqual:
		return sum >= r.TargetVal
	case OpLess:
		return sum < r.TargetVal
	case OpLessEqual:
		return sum <= r.TargetVal
	case OpBetween:
		return sum >= r.TargetVal && sum <= r.TargetVal2
	case OpOutside:
		return sum < r.TargetVal || sum > r.TargetVal2
	default:
		return false
	}
}

// Scan evaluates every nonce in [NonceStart, NonceEnd]. A timeout or cancelled ctx
// returns the hits found so far with Summary.TimedOut set.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.Limit = EffectiveLimit(req.Limit)
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	pool, err := ants.NewPool(s.workerCount)
	if err != nil {
		return nil, fmt.Errorf("create scan pool: %w", err)
	}
	defer pool.Release()

	hits := make(chan Hit, 256)
	var evaluated uint64
	var wg sync.WaitGroup

	go func() {
		s.generate(ctx, req.NonceStart, req.NonceEnd, func(j job) bool {
			wg.Add(1)
			err := pool.Submit(func() {
				defer wg.Done()
				s.process(ctx, req, j, hits, &evaluated)
			})
			if err != nil {
				wg.Done()
				return false
			}
			return true
		})
		wg.Wait()
		close(hits)
	}()

	// Hits arrive out of nonce order, so up to twice the limit is buffered before
	// trimming back to the lowest nonces.
	var (
		kept  []Hit
		stats summaryStats
	)
	for h := range hits {
		stats.add(h.Sum)
		kept = append(kept, h)
		if len(kept) >= 2*req.Limit {
			kept = lowestNonces(kept, req.Limit)
		}
	}
	kept = lowestNonces(kept, req.Limit)

	total := atomic.LoadUint64(&evaluated)
	summary := stats.summary(total, total < req.NonceEnd-req.NonceStart+1)
	if kept == nil {
		kept = []Hit{}
	}

	return &Result{
		Hits:           kept,
		Summary:        summary,
		ServerSeedHash: banknotes.HashServerSeed(req.Seeds.Server),
		Echo:           req,
	}, nil
}

func (s *Scanner) process(ctx context.Context, req Request, j job, hits chan<- Hit, evaluated *uint64) {
	for nonce := j.start; ; nonce++ {
		if ctx.Err() != nil {
			return
		}
		notes := banknotes.Deal(req.Seeds, nonce, banknotes.RoundSize)
		atomic.AddUint64(evaluated, 1)

		if sum := banknotes.Sum(notes); req.matches(sum) {
			select {
			case hits <- Hit{Nonce: nonce, Sum: sum, Notes: notes}:
			case <-ctx.Done():
				return
			}
		}
		// end may be the largest uint64, so stop before incrementing past it.
		if nonce == j.end {
			return
		}
	}
}

// generate splits [start, end] into batches and hands them to submit until it refuses
// one or ctx is done.
func (s *Scanner) generate(ctx context.Context, start, end uint64, submit func(job) bool) {
	for current := start; current <= end; {
		if ctx.Err() != nil {
			return
		}
		batchEnd := current + s.batchSize - 1
		if batchEnd > end || batchEnd < current {
			batchEnd = end
		}
		if !submit(job{start: current, end: batchEnd}) {
			return
		}
		if batchEnd == end {
			return
		}
		current = batchEnd + 1
	}
}

// EffectiveLimit applies DefaultLimit and MaxLimit to a requested limit.
func EffectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func lowestNonces(hits []Hit, limit int) []Hit {
	sort.Slice(hits, func(i, j int) bool { return hits[i].Nonce < hits[j].Nonce })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// summaryStats accumulates over every hit, including those beyond the limit.
type summaryStats struct {
	count    int
	min, max int
	total    int64
}

func (st *summaryStats) add(sum int) {
	if st.count == 0 || sum < st.min {
		st.min = sum
	}
	if st.count == 0 || sum > st.max {
		st.max = sum
	}
	st.count++
	st.total += int64(sum)
}

func (st summaryStats) summary(evaluated uint64, timedOut bool) Summary {
	summary := Summary{
		TotalEvaluated: evaluated,
		HitsFound:      st.count,
		TimedOut:       timedOut,
	}
	if st.count == 0 {
		return summary
	}
	summary.MinSum = st.min
	summary.MaxSum = st.max
	summary.MeanSum = decimal.NewFromInt(st.total).
		DivRound(decimal.NewFromInt(int64(st.count)), 2).
		InexactFloat64()
	return summary
}
