package bindings

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MJE43/cash-count-desktop/internal/roundstore"
)

var errNoJournal = errors.New("round journal is not available")

// HistoryModule is the Wails-bound struct for the round journal.
type HistoryModule struct {
	ctx   context.Context
	store *roundstore.Store
}

// RoundsPage is one page of journaled rounds, newest first.
type RoundsPage struct {
	Rounds []roundstore.Round `json:"rounds"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// RoundDetail is a journaled round plus its server seed once revealed.
type RoundDetail struct {
	Round    roundstore.Round   `json:"round"`
	Revealed *roundstore.Reveal `json:"revealed,omitempty"`
}

func NewHistoryModule(store *roundstore.Store) *HistoryModule {
	return &HistoryModule{store: store}
}

// Startup is called by Wails on application startup.
func (h *HistoryModule) Startup(ctx context.Context) {
	h.ctx = ctx
}

func (h *HistoryModule) context() context.Context {
	if h.ctx == nil {
		return context.Background()
	}
	return h.ctx
}

// Stats aggregates every round of the session.
func (h *HistoryModule) Stats() (roundstore.Stats, error) {
	if h.store == nil {
		return roundstore.Stats{}, errNoJournal
	}
	return h.store.Stats(h.context())
}

// RoundsPage returns a page of rounds.
func (h *HistoryModule) RoundsPage(limit, offset int) (RoundsPage, error) {
	if h.store == nil {
		return RoundsPage{}, errNoJournal
	}
	rounds, total, err := h.store.ListRounds(h.context(), limit, offset)
	if err != nil {
		return RoundsPage{}, err
	}
	return RoundsPage{Rounds: rounds, Total: total, Limit: limit, Offset: offset}, nil
}

// Round returns a single round and its revealed seed, if any.
func (h *HistoryModule) Round(roundID string) (RoundDetail, error) {
	if h.store == nil {
		return RoundDetail{}, errNoJournal
	}
	ctx := h.context()
	r, ok, err := h.store.GetRound(ctx, roundID)
	if err != nil {
		return RoundDetail{}, err
	}
	if !ok {
		return RoundDetail{}, fmt.Errorf("round %q not found", roundID)
	}
	detail := RoundDetail{Round: r}
	if r.ServerSeedHash != "" {
		rv, found, err := h.store.LookupReveal(ctx, r.ServerSeedHash)
		if err != nil {
			return RoundDetail{}, err
		}
		if found {
			detail.Revealed = &rv
		}
	}
	return detail, nil
}

// ExportCSV writes the journal to a temporary CSV file and returns its path.
func (h *HistoryModule) ExportCSV() (string, error) {
	if h.store == nil {
		return "", errNoJournal
	}
	f, err := os.CreateTemp("", "cash-count-history-*.csv")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := h.store.ExportCSV(h.context(), f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("export history: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}
