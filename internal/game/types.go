// Package game holds the session state machine and the scoring rule.
//
// A Controller owns exactly one session. The presentation layer reads Snapshots and
// drives the game only through the Controller's operations.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
)

// Phase is the current screen of the state machine.
type Phase string

const (
	PhaseMenu          Phase = "menu"
	PhasePlaying       Phase = "playing"
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseResult        Phase = "result"
	PhaseHistory       Phase = "history"
)

const (
	// StartingBalance is the balance of a fresh session.
	StartingBalance = 4500
	// TickPeriod is the clock resolution; each tick adds one period to the elapsed time.
	TickPeriod = 100 * time.Millisecond
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyDeal         = errors.New("dealer returned no banknotes")
	ErrRoundInProgress   = errors.New("round in progress")
)

func transitionError(op string, from Phase) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}

// Outcome of the last finished round.
type Outcome string

const (
	OutcomeUnset     Outcome = ""
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// Result describes the round that just reached the Result phase.
type Result struct {
	Outcome    Outcome `json:"outcome"`
	CorrectSum int     `json:"correctSum"`
}

// Record is one history entry. Entries are only ever appended.
type Record struct {
	RoundID        string  `json:"roundId"`
	Correct        bool    `json:"correct"`
	Amount         int     `json:"amount"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// Fairness identifies how the notes of the current round were dealt.
type Fairness struct {
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          uint64 `json:"nonce"`
}

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	// Seq increases with every state change, ticks included.
	Seq            uint64   `json:"seq"`
	Phase          Phase    `json:"phase"`
	RoundID        string   `json:"roundId,omitempty"`
	Notes          []int    `json:"notes"`
	CurrentIndex   int      `json:"currentIndex"`
	ElapsedSeconds float64  `json:"elapsedSeconds"`
	Balance        int      `json:"balance"`
	EnteredSum     string   `json:"enteredSum"`
	LastResult     Result   `json:"lastResult"`
	History        []Record `json:"history"`
	Fairness       Fairness `json:"fairness"`
}

// Upcoming returns up to n notes starting with the current one.
func (s Snapshot) Upcoming(n int) []int {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Notes) || n <= 0 {
		return nil
	}
	end := s.CurrentIndex + n
	if end > len(s.Notes) {
		end = len(s.Notes)
	}
	out := make([]int, end-s.CurrentIndex)
	copy(out, s.Notes[s.CurrentIndex:end])
	return out
}

// CompletedRound is handed to the Recorder when a round reaches Result.
type CompletedRound struct {
	Record
	Notes        []int     `json:"notes"`
	Entered      string    `json:"entered"`
	BalanceAfter int       `json:"balanceAfter"`
	Fairness     Fairness  `json:"fairness"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Dealer supplies the notes for a new round.
type Dealer interface {
	Deal(count int) banknotes.Hand
}

// SeedRotator is implemented by dealers that can retire their seeds.
type SeedRotator interface {
	Rotate(clientSeed string) (banknotes.Revealed, error)
}

// Clock is a periodic task. Start replaces any running task; Stop must not block
// on an in-flight tick.
type Clock interface {
	Start(tick func())
	Stop()
}

// Recorder receives completed rounds for journaling. Optional.
type Recorder interface {
	RecordRound(ctx context.Context, round CompletedRound) error
}

// Observer is notified outside the controller lock. Calls are serialized in Seq order
// and a snapshot older than one already delivered is dropped, so an Observer must not
// call back into the Controller's operations. Optional.
type Observer interface {
	StateChanged(s Snapshot)
	Ticked(s Snapshot)
}
