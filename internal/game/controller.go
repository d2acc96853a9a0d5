package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
)

// Options configures a Controller. Dealer is required.
type Options struct {
	Dealer   Dealer
	Clock    Clock
	Recorder Recorder
	Observer Observer
	Logger   *zap.Logger

	// ClockThroughInput keeps the clock running while the player types the total.
	// By default it freezes once the last note has been shown.
	ClockThroughInput bool
}

type session struct {
	phase        Phase
	roundID      string
	notes        []int
	currentIndex int
	ticks        int
	balance      int
	enteredSum   string
	lastResult   Result
	history      []Record
	fairness     Fairness
}

// Controller mediates every phase transition and owns the scoring rule.
type Controller struct {
	mu           sync.Mutex
	s            session
	gen          uint64
	seq          uint64
	clockRunning bool

	// notifyMu orders observer calls by Snapshot.Seq; notified is the last Seq delivered.
	notifyMu sync.Mutex
	notified uint64

	dealer            Dealer
	clock             Clock
	recorder          Recorder
	observer          Observer
	log               *zap.Logger
	clockThroughInput bool
	now               func() time.Time
}

// New creates a controller in the Menu phase with the starting balance.
func New(opts Options) *Controller {
	if opts.Dealer == nil {
		panic("game: Options.Dealer is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = NewIntervalClock(TickPeriod)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		s: session{
			phase:   PhaseMenu,
			balance: StartingBalance,
			history: []Record{},
		},
		dealer:            opts.Dealer,
		clock:             clock,
		recorder:          opts.Recorder,
		observer:          opts.Observer,
		log:               log.Named("game"),
		clockThroughInput: opts.ClockThroughInput,
		now:               time.Now,
	}
}

// StartRound deals a new round and starts the clock. Allowed from any phase; a
// round still in progress is abandoned without a history entry.
func (c *Controller) StartRound() (Snapshot, error) {
	c.mu.Lock()

	hand := c.dealer.Deal(banknotes.RoundSize)
	if len(hand.Notes) == 0 {
		c.mu.Unlock()
		return Snapshot{}, ErrEmptyDeal
	}
	if c.inRoundLocked() {
		c.log.Debug("round abandoned", zap.String("round_id", c.s.roundID))
	}

	c.stopClockLocked()
	c.gen++
	c.s.roundID = uuid.NewString()
	c.s.notes = append([]int(nil), hand.Notes...)
	c.s.currentIndex = 0
	c.s.ticks = 0
	c.s.enteredSum = ""
	c.s.lastResult = Result{}
	c.s.fairness = Fairness{
		ServerSeedHash: hand.ServerSeedHash,
		ClientSeed:     hand.ClientSeed,
		Nonce:          hand.Nonce,
	}
	c.s.phase = PhasePlaying
	c.startClockLocked()

	c.log.Debug("round started",
		zap.String("round_id", c.s.roundID),
		zap.Uint64("nonce", hand.Nonce),
		zap.Int("notes", len(c.s.notes)),
	)
	snap := c.publishLocked()
	c.mu.Unlock()

	c.changed(snap)
	return snap, nil
}

// AdvanceNote shows the next note, or moves to AwaitingInput after the last one.
func (c *Controller) AdvanceNote() (Snapshot, error) {
	c.mu.Lock()

	if c.s.phase != PhasePlaying {
		err := transitionError("advance note", c.s.phase)
		c.mu.Unlock()
		return Snapshot{}, err
	}

	if c.s.currentIndex < len(c.s.notes)-1 {
		c.s.currentIndex++
	} else {
		c.s.phase = PhaseAwaitingInput
		if !c.clockThroughInput {
			c.stopClockLocked()
		}
	}

	snap := c.publishLocked()
	c.mu.Unlock()

	c.changed(snap)
	return snap, nil
}

// SubmitSum scores the entered total, records the round and stops the clock.
// Unparseable input is scored as incorrect; it is never an error.
func (c *Controller) SubmitSum(raw string) (Snapshot, error) {
	c.mu.Lock()

	if c.s.phase != PhaseAwaitingInput {
		err := transitionError("submit sum", c.s.phase)
		c.mu.Unlock()
		return Snapshot{}, err
	}

	c.stopClockLocked()

	correctSum := banknotes.Sum(c.s.notes)
	value, ok := ParseSum(raw)
	correct := ok && value == correctSum

	c.s.enteredSum = raw
	outcome := OutcomeIncorrect
	if correct {
		outcome = OutcomeCorrect
		c.s.balance += correctSum
	}
	c.s.lastResult = Result{Outcome: outcome, CorrectSum: correctSum}

	rec := Record{
		RoundID:        c.s.roundID,
		Correct:        correct,
		Amount:         correctSum,
		ElapsedSeconds: elapsedSeconds(c.s.ticks),
	}
	c.s.history = append(c.s.history, rec)
	c.s.phase = PhaseResult

	completed := CompletedRound{
		Record:       rec,
		Notes:        append([]int(nil), c.s.notes...),
		Entered:      raw,
		BalanceAfter: c.s.balance,
		Fairness:     c.s.fairness,
		CompletedAt:  c.now().UTC(),
	}
	snap := c.publishLocked()
	c.mu.Unlock()

	c.log.Info("round completed",
		zap.String("round_id", rec.RoundID),
		zap.Bool("correct", rec.Correct),
		zap.Int("amount", rec.Amount),
		zap.Float64("elapsed_seconds", rec.ElapsedSeconds),
	)
	c.record(completed)
	c.changed(snap)
	return snap, nil
}

// ReturnToMenu goes back to the menu from any phase.
func (c *Controller) ReturnToMenu() (Snapshot, error) {
	c.mu.Lock()

	if c.inRoundLocked() {
		c.log.Debug("round abandoned", zap.String("round_id", c.s.roundID))
	}
	c.stopClockLocked()
	c.s.phase = PhaseMenu

	snap := c.publishLocked()
	c.mu.Unlock()

	c.changed(snap)
	return snap, nil
}

// ViewHistory opens the read-only history view from the menu.
func (c *Controller) ViewHistory() (Snapshot, error) {
	return c.move("view history", PhaseMenu, PhaseHistory)
}

// BackFromHistory returns from the history view to the menu.
func (c *Controller) BackFromHistory() (Snapshot, error) {
	return c.move("back from history", PhaseHistory, PhaseMenu)
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// RotateSeeds retires the dealer's seeds. Not allowed while a round is being played.
func (c *Controller) RotateSeeds(clientSeed string) (banknotes.Revealed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inRoundLocked() {
		return banknotes.Revealed{}, ErrRoundInProgress
	}
	rotator, ok := c.dealer.(SeedRotator)
	if !ok {
		return banknotes.Revealed{}, errors.New("dealer does not support seed rotation")
	}
	revealed, err := rotator.Rotate(clientSeed)
	if err != nil {
		return banknotes.Revealed{}, err
	}
	c.log.Info("seeds rotated", zap.Uint64("last_nonce", revealed.LastNonce))
	return revealed, nil
}

// Close stops the clock.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopClockLocked()
}

func (c *Controller) move(op string, from, to Phase) (Snapshot, error) {
	c.mu.Lock()

	if c.s.phase != from {
		err := transitionError(op, c.s.phase)
		c.mu.Unlock()
		return Snapshot{}, err
	}
	c.s.phase = to

	snap := c.publishLocked()
	c.mu.Unlock()

	c.changed(snap)
	return snap, nil
}

func (c *Controller) inRoundLocked() bool {
	return c.s.phase == PhasePlaying || c.s.phase == PhaseAwaitingInput
}

func (c *Controller) startClockLocked() {
	gen := c.gen
	c.clockRunning = true
	c.clock.Start(func() { c.tick(gen) })
}

func (c *Controller) stopClockLocked() {
	if !c.clockRunning {
		return
	}
	c.clockRunning = false
	c.clock.Stop()
}

// tick drops ticks from a clock that was stopped or belongs to an earlier round.
func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.clockRunning {
		c.mu.Unlock()
		return
	}
	c.s.ticks++
	snap := c.publishLocked()
	c.mu.Unlock()

	c.notify(snap, true)
}

// publishLocked stamps a new sequence number on the state after a change.
func (c *Controller) publishLocked() Snapshot {
	c.seq++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	history := make([]Record, len(c.s.history))
	copy(history, c.s.history)

	return Snapshot{
		Seq:            c.seq,
		Phase:          c.s.phase,
		RoundID:        c.s.roundID,
		Notes:          append([]int{}, c.s.notes...),
		CurrentIndex:   c.s.currentIndex,
		ElapsedSeconds: elapsedSeconds(c.s.ticks),
		Balance:        c.s.balance,
		EnteredSum:     c.s.enteredSum,
		LastResult:     c.s.lastResult,
		History:        history,
		Fairness:       c.s.fairness,
	}
}

func (c *Controller) changed(snap Snapshot) {
	c.notify(snap, false)
}

// notify delivers snap unless a later one already reached the observer. A tick
// snapshotted before a transition must not overwrite the transition's screen.
func (c *Controller) notify(snap Snapshot, tick bool) {
	if c.observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Seq <= c.notified {
		c.log.Debug("stale snapshot dropped", zap.Uint64("seq", snap.Seq), zap.Uint64("delivered", c.notified))
		return
	}
	c.notified = snap.Seq
	if tick {
		c.observer.Ticked(snap)
		return
	}
	c.observer.StateChanged(snap)
}

func (c *Controller) record(round CompletedRound) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordRound(context.Background(), round); err != nil {
		c.log.Warn("failed to journal round", zap.String("round_id", round.RoundID), zap.Error(err))
	}
}

// elapsedSeconds converts ticks to seconds at display precision (one decimal).
func elapsedSeconds(ticks int) float64 {
	ms := decimal.NewFromInt(int64(ticks) * TickPeriod.Milliseconds())
	return ms.Shift(-3).Round(1).InexactFloat64()
}
