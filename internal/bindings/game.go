package bindings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
	"github.com/MJE43/cash-count-desktop/internal/game"
	"github.com/MJE43/cash-count-desktop/internal/i18n"
	"github.com/MJE43/cash-count-desktop/internal/presenter"
	"github.com/MJE43/cash-count-desktop/internal/roundstore"
	"github.com/MJE43/cash-count-desktop/internal/scan"
)

// EventScreen carries a freshly rendered presenter.Screen on every state change and tick.
const EventScreen = "game:screen"

// Emitter pushes events to the frontend.
type Emitter interface {
	Emit(event string, data any)
}

// wailsEmitter bridges controller notifications to Wails runtime events.
type wailsEmitter struct {
	mu  sync.RWMutex
	ctx context.Context
}

func (e *wailsEmitter) bind(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
}

func (e *wailsEmitter) Emit(event string, data any) {
	e.mu.RLock()
	ctx := e.ctx
	e.mu.RUnlock()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, event, data)
}

// GameOptions wires a GameModule. Dealer and Bundle are required.
type GameOptions struct {
	Dealer            *banknotes.Dealer
	Bundle            *i18n.Bundle
	Store             *roundstore.Store
	Locale            string
	Logger            *zap.Logger
	Clock             game.Clock
	ClockThroughInput bool
	Emitter           Emitter
}

// GameModule is the Wails-bound struct that drives the game controller.
type GameModule struct {
	ctx     context.Context
	mu      sync.RWMutex
	locale  string
	ctrl    *game.Controller
	dealer  *banknotes.Dealer
	bundle  *i18n.Bundle
	store   *roundstore.Store
	emitter Emitter
	log     *zap.Logger

	emitMu  sync.Mutex
	emitted uint64
}

// Fairness is the commitment for the next round plus the one being played.
type Fairness struct {
	Next    banknotes.Commitment `json:"next"`
	Current game.Fairness        `json:"current"`
}

// Verification recomputes a round from revealed seeds.
type Verification struct {
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          uint64 `json:"nonce"`
	Notes          []int  `json:"notes"`
	Sum            int    `json:"sum"`
}

// NewGameModule creates the controller and the module observing it.
func NewGameModule(opts GameOptions) *GameModule {
	if opts.Dealer == nil || opts.Bundle == nil {
		panic("bindings: GameOptions.Dealer and GameOptions.Bundle are required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = &wailsEmitter{}
	}
	m := &GameModule{
		locale:  opts.Bundle.Resolve(opts.Locale),
		dealer:  opts.Dealer,
		bundle:  opts.Bundle,
		store:   opts.Store,
		emitter: emitter,
		log:     log.Named("bindings"),
	}

	gameOpts := game.Options{
		Dealer:            opts.Dealer,
		Clock:             opts.Clock,
		Observer:          m,
		Logger:            log,
		ClockThroughInput: opts.ClockThroughInput,
	}
	// A nil *Store must not become a non-nil Recorder.
	if opts.Store != nil {
		gameOpts.Recorder = opts.Store
	}
	m.ctrl = game.New(gameOpts)
	return m
}

// Startup is called by Wails on application startup.
func (m *GameModule) Startup(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	if b, ok := m.emitter.(interface{ bind(context.Context) }); ok {
		b.bind(ctx)
	}
}

// Shutdown is called by Wails before the window closes.
func (m *GameModule) Shutdown(ctx context.Context) {
	m.ctrl.Close()
}

// Controller exposes the controller for the loopback HTTP server.
func (m *GameModule) Controller() *game.Controller { return m.ctrl }

// Screen renders the current phase in the active locale.
func (m *GameModule) Screen() presenter.Screen {
	return m.render(m.ctrl.Snapshot())
}

// Dispatch runs a presenter action (see presenter.Actions) and returns the new screen.
func (m *GameModule) Dispatch(action string, input string) (presenter.Screen, error) {
	snap, err := presenter.Apply(m.ctrl, strings.TrimSpace(action), input)
	if err != nil {
		m.log.Debug("action rejected", zap.String("action", action), zap.Error(err))
		return m.Screen(), err
	}
	return m.render(snap), nil
}

// Snapshot returns the raw session state.
func (m *GameModule) Snapshot() game.Snapshot {
	return m.ctrl.Snapshot()
}

// Locale returns the active locale id.
func (m *GameModule) Locale() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locale
}

// SetLocale switches the display language and re-emits the screen.
func (m *GameModule) SetLocale(locale string) (presenter.Screen, error) {
	locale = strings.TrimSpace(locale)
	if !m.bundle.HasLocale(locale) {
		return m.Screen(), fmt.Errorf("unsupported locale %q", locale)
	}
	m.mu.Lock()
	m.locale = locale
	m.mu.Unlock()

	snap := m.ctrl.Snapshot()
	m.emit(snap)
	return m.render(snap), nil
}

// Locales lists the available locale ids.
func (m *GameModule) Locales() []string {
	return m.bundle.Locales()
}

// Fairness returns the seed commitment for the next round.
func (m *GameModule) Fairness() Fairness {
	return Fairness{
		Next:    m.dealer.Commitment(),
		Current: m.ctrl.Snapshot().Fairness,
	}
}

// RotateSeeds reveals the current server seed and starts a new pair.
func (m *GameModule) RotateSeeds(clientSeed string) (banknotes.Revealed, error) {
	revealed, err := m.ctrl.RotateSeeds(strings.TrimSpace(clientSeed))
	if err != nil {
		return banknotes.Revealed{}, err
	}
	if m.store != nil {
		if err := m.store.RecordReveal(m.context(), revealed); err != nil {
			m.log.Warn("failed to store revealed seed", zap.Error(err))
		}
	}
	return revealed, nil
}

// VerifyRound recomputes the notes of a round from its seeds.
func (m *GameModule) VerifyRound(serverSeed, clientSeed string, nonce uint64) (Verification, error) {
	return Verify(serverSeed, clientSeed, nonce)
}

// Verify recomputes the notes dealt for seeds and nonce.
func Verify(serverSeed, clientSeed string, nonce uint64) (Verification, error) {
	notes, err := banknotes.Verify(banknotes.Seeds{Server: serverSeed, Client: clientSeed}, nonce)
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		ServerSeedHash: banknotes.HashServerSeed(serverSeed),
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		Notes:          notes,
		Sum:            banknotes.Sum(notes),
	}, nil
}

// ScanSeeds searches a nonce range of a revealed seed pair for deals matching a target total.
func (m *GameModule) ScanSeeds(req scan.Request) (*scan.Result, error) {
	return scan.NewScanner().Scan(m.context(), req)
}

// StateChanged implements game.Observer.
func (m *GameModule) StateChanged(s game.Snapshot) {
	m.emit(s)
}

// Ticked implements game.Observer.
func (m *GameModule) Ticked(s game.Snapshot) {
	m.emit(s)
}

// emit pushes the screen for s unless a newer state was already pushed. An equal
// Seq is re-emitted so a locale switch redraws the current state.
func (m *GameModule) emit(s game.Snapshot) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if s.Seq < m.emitted {
		return
	}
	m.emitted = s.Seq
	m.emitter.Emit(EventScreen, m.render(s))
}

func (m *GameModule) render(s game.Snapshot) presenter.Screen {
	locale := m.Locale()
	sc := presenter.Render(s, m.bundle.Printer(locale))
	sc.Locale = locale
	return sc
}

func (m *GameModule) context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}
