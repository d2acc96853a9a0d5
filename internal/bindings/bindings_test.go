package bindings

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
	"github.com/MJE43/cash-count-desktop/internal/game"
	"github.com/MJE43/cash-count-desktop/internal/i18n"
	"github.com/MJE43/cash-count-desktop/internal/presenter"
	"github.com/MJE43/cash-count-desktop/internal/roundstore"
	"github.com/MJE43/cash-count-desktop/internal/scan"
)

type event struct {
	name   string
	screen presenter.Screen
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeEmitter) Emit(name string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, _ := data.(presenter.Screen)
	f.events = append(f.events, event{name: name, screen: sc})
}

func (f *fakeEmitter) last() event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[len(f.events)-1]
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type manualClock struct{ tick func() }

func (c *manualClock) Start(tick func()) { c.tick = tick }
func (c *manualClock) Stop()             {}

type fixture struct {
	game    *GameModule
	history *HistoryModule
	store   *roundstore.Store
	emitter *fakeEmitter
	clock   *manualClock
	seeds   banknotes.Seeds
}

func newFixture(t *testing.T, locale string) fixture {
	t.Helper()
	bundle, err := i18n.LoadEmbedded()
	require.NoError(t, err)
	store, err := roundstore.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seeds := banknotes.Seeds{Server: "server-seed", Client: "client-seed"}
	f := fixture{
		store:   store,
		emitter: &fakeEmitter{},
		clock:   &manualClock{},
		seeds:   seeds,
	}
	f.game = NewGameModule(GameOptions{
		Dealer:  banknotes.NewDealerWithSeeds(seeds),
		Bundle:  bundle,
		Store:   store,
		Locale:  locale,
		Clock:   f.clock,
		Emitter: f.emitter,
	})
	f.history = NewHistoryModule(store)
	t.Cleanup(func() { f.game.Shutdown(context.Background()) })
	return f
}

// playRound plays one full round and answers correctly when correct is set.
func (f fixture) playRound(t *testing.T, correct bool) game.Snapshot {
	t.Helper()
	_, err := f.game.Dispatch(presenter.ActionStartRound, "")
	require.NoError(t, err)
	f.clock.tick()
	for f.game.Snapshot().Phase == game.PhasePlaying {
		_, err := f.game.Dispatch(presenter.ActionAdvanceNote, "")
		require.NoError(t, err)
	}
	sum := banknotes.Sum(f.game.Snapshot().Notes)
	if !correct {
		sum++
	}
	_, err = f.game.Dispatch(presenter.ActionSubmitSum, strconv.Itoa(sum))
	require.NoError(t, err)
	return f.game.Snapshot()
}

func TestScreenUsesConfiguredLocale(t *testing.T) {
	f := newFixture(t, "ru-RU")

	sc := f.game.Screen()
	require.Equal(t, "ru-RU", sc.Locale)
	require.Equal(t, game.PhaseMenu, sc.Phase)
	require.Equal(t, "ИГРАТЬ", sc.Actions[0].Label)

	unknown := newFixture(t, "xx-YY")
	require.Equal(t, i18n.BaseLocale, unknown.game.Locale())
}

func TestDispatchEmitsScreens(t *testing.T) {
	f := newFixture(t, "en-US")

	sc, err := f.game.Dispatch(presenter.ActionStartRound, "")
	require.NoError(t, err)
	require.Equal(t, game.PhasePlaying, sc.Phase)
	require.Len(t, sc.Notes, presenter.StackDepth)
	require.Equal(t, 1, f.emitter.count())
	require.Equal(t, EventScreen, f.emitter.last().name)
	require.Equal(t, game.PhasePlaying, f.emitter.last().screen.Phase)

	f.clock.tick()
	require.Equal(t, 2, f.emitter.count())
	require.Equal(t, 0.1, f.emitter.last().screen.ElapsedSeconds)
}

func TestDispatchErrors(t *testing.T) {
	f := newFixture(t, "en-US")

	sc, err := f.game.Dispatch("jump", "")
	require.ErrorIs(t, err, presenter.ErrUnknownAction)
	require.Equal(t, game.PhaseMenu, sc.Phase)

	_, err = f.game.Dispatch(presenter.ActionAdvanceNote, "")
	require.ErrorIs(t, err, game.ErrInvalidTransition)
	require.Zero(t, f.emitter.count())
}

func TestRoundsAreJournaled(t *testing.T) {
	f := newFixture(t, "en-US")

	won := f.playRound(t, true)
	require.Equal(t, game.OutcomeCorrect, won.LastResult.Outcome)
	lost := f.playRound(t, false)
	require.Equal(t, game.OutcomeIncorrect, lost.LastResult.Outcome)

	stats, err := f.history.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Rounds)
	require.EqualValues(t, 1, stats.Correct)
	require.Equal(t, 50.0, stats.AccuracyPercent)
	require.Equal(t, 0.1, stats.BestSeconds)

	page, err := f.history.RoundsPage(10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Equal(t, lost.History[1].RoundID, page.Rounds[0].RoundID)
	require.Equal(t, uint64(2), page.Rounds[0].Nonce)
	require.Equal(t, banknotes.HashServerSeed(f.seeds.Server), page.Rounds[0].ServerSeedHash)
}

func TestRotateSeedsRevealsJournaledRounds(t *testing.T) {
	f := newFixture(t, "en-US")
	played := f.playRound(t, true)
	roundID := played.History[0].RoundID

	detail, err := f.history.Round(roundID)
	require.NoError(t, err)
	require.Nil(t, detail.Revealed)

	revealed, err := f.game.RotateSeeds("fresh-client")
	require.NoError(t, err)
	require.Equal(t, f.seeds, revealed.Seeds)
	require.Equal(t, uint64(1), revealed.LastNonce)

	detail, err = f.history.Round(roundID)
	require.NoError(t, err)
	require.NotNil(t, detail.Revealed)
	require.Equal(t, f.seeds.Server, detail.Revealed.ServerSeed)

	v, err := f.game.VerifyRound(detail.Revealed.ServerSeed, detail.Round.ClientSeed, detail.Round.Nonce)
	require.NoError(t, err)
	require.Equal(t, played.Notes, v.Notes)
	require.Equal(t, detail.Round.Amount, v.Sum)

	next := f.game.Fairness().Next
	require.Equal(t, "fresh-client", next.ClientSeed)
	require.NotEqual(t, detail.Round.ServerSeedHash, next.ServerSeedHash)

	_, err = f.history.Round("missing")
	require.Error(t, err)
}

func TestRotateSeedsRejectedMidRound(t *testing.T) {
	f := newFixture(t, "en-US")
	_, err := f.game.Dispatch(presenter.ActionStartRound, "")
	require.NoError(t, err)

	_, err = f.game.RotateSeeds("")
	require.ErrorIs(t, err, game.ErrRoundInProgress)
}

func TestSetLocale(t *testing.T) {
	f := newFixture(t, "en-US")

	sc, err := f.game.SetLocale("ru-RU")
	require.NoError(t, err)
	require.Equal(t, "ru-RU", sc.Locale)
	require.Equal(t, "ru-RU", f.emitter.last().screen.Locale)
	require.Equal(t, []string{"en-US", "ru-RU"}, f.game.Locales())

	_, err = f.game.SetLocale("de-DE")
	require.Error(t, err)
	require.Equal(t, "ru-RU", f.game.Locale())
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, "en-US")
	f.playRound(t, true)

	path, err := f.history.ExportCSV()
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
}

func TestHistoryWithoutStore(t *testing.T) {
	h := NewHistoryModule(nil)
	_, err := h.Stats()
	require.ErrorIs(t, err, errNoJournal)
	_, err = h.ExportCSV()
	require.ErrorIs(t, err, errNoJournal)
}

func TestVerify(t *testing.T) {
	seeds := banknotes.Seeds{Server: "s", Client: "c"}
	v, err := Verify(seeds.Server, seeds.Client, 3)
	require.NoError(t, err)
	want, err := banknotes.Verify(seeds, 3)
	require.NoError(t, err)
	require.Equal(t, want, v.Notes)
	require.Equal(t, banknotes.Sum(want), v.Sum)

	_, err = Verify("", "c", 1)
	require.Error(t, err)
}

func TestScanSeeds(t *testing.T) {
	f := newFixture(t, "en-US")

	res, err := f.game.ScanSeeds(scan.Request{
		Seeds:      f.seeds,
		NonceStart: 1,
		NonceEnd:   20,
		TargetOp:   scan.OpGreaterEqual,
		TargetVal:  0,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 20)
	require.Equal(t, banknotes.Deal(f.seeds, 7, banknotes.RoundSize), res.Hits[6].Notes)

	_, err = f.game.ScanSeeds(scan.Request{Seeds: f.seeds, NonceStart: 0, NonceEnd: 1, TargetOp: scan.OpEqual})
	require.ErrorIs(t, err, scan.ErrInvalidRange)
}

func TestStaleScreensAreNotEmitted(t *testing.T) {
	f := newFixture(t, "en-US")

	_, err := f.game.Dispatch(presenter.ActionStartRound, "")
	require.NoError(t, err)
	stale := f.game.Snapshot()

	_, err = f.game.Dispatch(presenter.ActionReturnToMenu, "")
	require.NoError(t, err)
	emitted := f.emitter.count()

	f.game.Ticked(stale)
	require.Equal(t, emitted, f.emitter.count())
	require.Equal(t, game.PhaseMenu, f.emitter.last().screen.Phase)

	sc, err := f.game.SetLocale("ru-RU")
	require.NoError(t, err)
	require.Equal(t, game.PhaseMenu, sc.Phase)
	require.Equal(t, emitted+1, f.emitter.count())
	require.Greater(t, f.emitter.last().screen.Seq, stale.Seq)
}
