// Package roundstore journals completed rounds and revealed seeds in an in-memory
// SQLite database that lives as long as the session.
package roundstore

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
	"github.com/MJE43/cash-count-desktop/internal/game"
)

var ErrDuplicateRound = errors.New("round already recorded")

// --------- Data models ---------

type Round struct {
	ID             int64     `json:"id"`
	RoundID        string    `json:"roundId"`
	CompletedAt    time.Time `json:"completedAt"`
	Correct        bool      `json:"correct"`
	Amount         int       `json:"amount"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	Entered        string    `json:"entered"`
	Notes          []int     `json:"notes"`
	BalanceAfter   int       `json:"balanceAfter"`
	ServerSeedHash string    `json:"serverSeedHash"`
	ClientSeed     string    `json:"clientSeed"`
	Nonce          uint64    `json:"nonce"`
}

// Stats aggregates the journal. Time figures only count correct rounds.
type Stats struct {
	Rounds          int64   `json:"rounds"`
	Correct         int64   `json:"correct"`
	Incorrect       int64   `json:"incorrect"`
	AccuracyPercent float64 `json:"accuracyPercent"`
	TotalWon        int64   `json:"totalWon"`
	BestSeconds     float64 `json:"bestSeconds"`
	AverageSeconds  float64 `json:"averageSeconds"`
}

// Reveal is a retired server seed kept so earlier rounds can be verified.
type Reveal struct {
	ServerSeedHash string    `json:"serverSeedHash"`
	ServerSeed     string    `json:"serverSeed"`
	ClientSeed     string    `json:"clientSeed"`
	LastNonce      uint64    `json:"lastNonce"`
	RevealedAt     time.Time `json:"revealedAt"`
}

// --------- Store ---------

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewMemory opens a private in-memory database and runs migrations.
func NewMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A shared-cache memory database disappears with its last connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id TEXT NOT NULL UNIQUE,
			completed_at TIMESTAMP NOT NULL,
			correct INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			elapsed_seconds REAL NOT NULL,
			entered TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL,
			balance_after INTEGER NOT NULL,
			server_seed_hash TEXT NOT NULL DEFAULT '',
			client_seed TEXT NOT NULL DEFAULT '',
			nonce INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_completed ON rounds(completed_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_seed_nonce ON rounds(server_seed_hash, nonce);`,

		`CREATE TABLE IF NOT EXISTS seed_reveals (
			server_seed_hash TEXT PRIMARY KEY,
			server_seed TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			last_nonce INTEGER NOT NULL,
			revealed_at TIMESTAMP NOT NULL
		);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Rounds ---------

// RecordRound appends a completed round. It satisfies game.Recorder.
func (s *Store) RecordRound(ctx context.Context, r game.CompletedRound) error {
	completedAt := r.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds(round_id, completed_at, correct, amount, elapsed_seconds, entered, notes,
			balance_after, server_seed_hash, client_seed, nonce)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoundID, completedAt.UTC(), boolToInt(r.Correct), r.Amount, r.ElapsedSeconds, r.Entered,
		joinNotes(r.Notes), r.BalanceAfter, r.Fairness.ServerSeedHash, r.Fairness.ClientSeed,
		int64(r.Fairness.Nonce))
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRound, r.RoundID)
		}
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// ListRounds returns a page of rounds, newest first, and the total count.
func (s *Store) ListRounds(ctx context.Context, limit, offset int) ([]Round, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rounds: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, completed_at, correct, amount, elapsed_seconds, entered, notes,
		       balance_after, server_seed_hash, client_seed, nonce
		FROM rounds
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	out := []Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// GetRound looks a round up by its id.
func (s *Store) GetRound(ctx context.Context, roundID string) (Round, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, round_id, completed_at, correct, amount, elapsed_seconds, entered, notes,
		       balance_after, server_seed_hash, client_seed, nonce
		FROM rounds WHERE round_id=?`, roundID)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Round{}, false, nil
	}
	if err != nil {
		return Round{}, false, err
	}
	return r, true, nil
}

// Stats aggregates every recorded round.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st      Stats
		best    sql.NullFloat64
		sumTime float64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(correct), 0),
		       COALESCE(SUM(CASE WHEN correct=1 THEN amount ELSE 0 END), 0),
		       MIN(CASE WHEN correct=1 THEN elapsed_seconds END),
		       COALESCE(SUM(CASE WHEN correct=1 THEN elapsed_seconds ELSE 0 END), 0)
		FROM rounds`).Scan(&st.Rounds, &st.Correct, &st.TotalWon, &best, &sumTime)
	if err != nil {
		return Stats{}, fmt.Errorf("round stats: %w", err)
	}
	st.Incorrect = st.Rounds - st.Correct

	if st.Rounds > 0 {
		st.AccuracyPercent = decimal.NewFromInt(st.Correct).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(st.Rounds), 1).
			InexactFloat64()
	}
	if st.Correct > 0 {
		st.BestSeconds = decimal.NewFromFloat(best.Float64).Round(1).InexactFloat64()
		st.AverageSeconds = decimal.NewFromFloat(sumTime).
			DivRound(decimal.NewFromInt(st.Correct), 2).
			InexactFloat64()
	}
	return st, nil
}

// ExportCSV writes every round, oldest first, as CSV (header included).
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, completed_at, correct, amount, elapsed_seconds, entered, notes,
		       balance_after, server_seed_hash, client_seed, nonce
		FROM rounds ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("export rounds: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "round_id", "completed_at", "correct", "amount", "elapsed_seconds", "entered",
		"notes", "balance_after", "server_seed_hash", "client_seed", "nonce",
	}); err != nil {
		return err
	}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{
			strconv.FormatInt(r.ID, 10),
			r.RoundID,
			r.CompletedAt.UTC().Format(time.RFC3339Nano),
			strconv.FormatBool(r.Correct),
			strconv.Itoa(r.Amount),
			decimal.NewFromFloat(r.ElapsedSeconds).StringFixed(1),
			r.Entered,
			joinNotes(r.Notes),
			strconv.Itoa(r.BalanceAfter),
			r.ServerSeedHash,
			r.ClientSeed,
			strconv.FormatUint(r.Nonce, 10),
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// --------- Seed reveals ---------

// RecordReveal stores a retired seed pair.
func (s *Store) RecordReveal(ctx context.Context, rv banknotes.Revealed) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seed_reveals(server_seed_hash, server_seed, client_seed, last_nonce, revealed_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(server_seed_hash) DO UPDATE SET
			client_seed=excluded.client_seed,
			last_nonce=excluded.last_nonce,
			revealed_at=excluded.revealed_at
	`, banknotes.HashServerSeed(rv.Seeds.Server), rv.Seeds.Server, rv.Seeds.Client,
		int64(rv.LastNonce), s.now().UTC())
	if err != nil {
		return fmt.Errorf("record reveal: %w", err)
	}
	return nil
}

// LookupReveal returns the plain server seed for a hash if it has been revealed.
func (s *Store) LookupReveal(ctx context.Context, hash string) (Reveal, bool, error) {
	var (
		rv    Reveal
		nonce int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT server_seed_hash, server_seed, client_seed, last_nonce, revealed_at
		FROM seed_reveals WHERE server_seed_hash=?`, hash).
		Scan(&rv.ServerSeedHash, &rv.ServerSeed, &rv.ClientSeed, &nonce, &rv.RevealedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reveal{}, false, nil
	}
	if err != nil {
		return Reveal{}, false, fmt.Errorf("lookup reveal: %w", err)
	}
	rv.LastNonce = uint64(nonce)
	return rv, true, nil
}

// --------- helpers ---------

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(sc scanner) (Round, error) {
	var (
		r       Round
		correct int64
		notes   string
		nonce   int64
	)
	if err := sc.Scan(&r.ID, &r.RoundID, &r.CompletedAt, &correct, &r.Amount, &r.ElapsedSeconds,
		&r.Entered, &notes, &r.BalanceAfter, &r.ServerSeedHash, &r.ClientSeed, &nonce); err != nil {
		return Round{}, err
	}
	r.Correct = correct != 0
	r.Nonce = uint64(nonce)
	parsed, err := splitNotes(notes)
	if err != nil {
		return Round{}, fmt.Errorf("round %s: %w", r.RoundID, err)
	}
	r.Notes = parsed
	return r, nil
}

func joinNotes(notes []int) string {
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

func splitNotes(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad note %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintErr(err error) bool {
	// modernc sqlite reports "constraint failed" in the message.
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}
