// Package gamehttp serves the game over a loopback HTTP API so it can also be played
// from a browser.
package gamehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
	"github.com/MJE43/cash-count-desktop/internal/game"
	"github.com/MJE43/cash-count-desktop/internal/i18n"
	"github.com/MJE43/cash-count-desktop/internal/presenter"
	"github.com/MJE43/cash-count-desktop/internal/roundstore"
	"github.com/MJE43/cash-count-desktop/internal/scan"
)

const maxBodyBytes = 64 << 10

// Options wires a Server. Controller and Bundle are required.
type Options struct {
	Controller *game.Controller
	Bundle     *i18n.Bundle
	Store      *roundstore.Store
	Assets     fs.FS
	Locale     string
	Port       int
	Logger     *zap.Logger
}

// Server runs the local HTTP API bound to loopback.
type Server struct {
	ctrl   *game.Controller
	bundle *i18n.Bundle
	store  *roundstore.Store
	scan   *scan.Scanner
	assets fs.FS
	locale string
	log    *zap.Logger

	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server bound to 127.0.0.1 at the given port. Port 0 picks a free one.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	port := opts.Port
	if port < 0 {
		port = 0
	}
	return &Server{
		ctrl:         opts.Controller,
		bundle:       opts.Bundle,
		store:        opts.Store,
		scan:         scan.NewScanner(),
		assets:       opts.Assets,
		locale:       opts.Bundle.Resolve(opts.Locale),
		log:          log.Named("http"),
		addr:         fmt.Sprintf("127.0.0.1:%d", port),
		readTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://127.0.0.1:*", "http://localhost:*", "wails://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/screen", s.handleScreen)
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/actions/{action}", s.handleAction)
		r.Get("/locales", s.handleLocales)
		r.Get("/locales/{locale}/messages", s.handleLocaleMessages)
		r.Post("/verify", s.handleVerify)
		r.Post("/scan", s.handleScan)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Get("/stats", s.handleHistoryStats)
			r.Get("/export.csv", s.handleHistoryExport)
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errObj("METHOD_NOT_ALLOWED", "method not allowed", ""))
	})
	if s.assets != nil {
		r.Handle("/*", http.FileServer(http.FS(s.assets)))
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "not found", ""))
		})
	}
	return r
}

// Start begins listening in a goroutine. It returns once the socket is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Routes(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()
	s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ========== Handlers ==========

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"phase":  s.ctrl.Snapshot().Phase,
	})
}

// GET /api/v1/screen?locale=
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.render(r, s.ctrl.Snapshot()))
}

// GET /api/v1/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

type actionRequest struct {
	Input string `json:"input"`
}

// POST /api/v1/actions/{action}
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_BODY", err.Error(), ""))
		return
	}

	action := chi.URLParam(r, "action")
	snap, err := presenter.Apply(s.ctrl, action, req.Input)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.render(r, snap))
	case errors.Is(err, presenter.ErrUnknownAction):
		msg := fmt.Sprintf("%v; expected one of: %s", err, strings.Join(presenter.Actions(), ", "))
		writeJSON(w, http.StatusNotFound, errObj("UNKNOWN_ACTION", msg, "action"))
	case errors.Is(err, game.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errObj("INVALID_TRANSITION", err.Error(), ""))
	default:
		s.log.Error("action failed", zap.String("action", action), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errObj("INTERNAL", "action failed", ""))
	}
}

// GET /api/v1/locales
func (s *Server) handleLocales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"locales": s.bundle.Locales(),
		"default": s.locale,
	})
}

// GET /api/v1/locales/{locale}/messages
func (s *Server) handleLocaleMessages(w http.ResponseWriter, r *http.Request) {
	locale := chi.URLParam(r, "locale")
	if !s.bundle.HasLocale(locale) {
		writeJSON(w, http.StatusNotFound, errObj("UNKNOWN_LOCALE", fmt.Sprintf("locale %q is not available", locale), "locale"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locale":   locale,
		"messages": s.bundle.Messages(locale),
	})
}

type verifyRequest struct {
	ServerSeed string `json:"serverSeed"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
}

// POST /api/v1/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_BODY", err.Error(), ""))
		return
	}
	seeds := banknotes.Seeds{Server: req.ServerSeed, Client: req.ClientSeed}
	notes, err := banknotes.Verify(seeds, req.Nonce)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_SEEDS", err.Error(), ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serverSeedHash": banknotes.HashServerSeed(req.ServerSeed),
		"clientSeed":     req.ClientSeed,
		"nonce":          req.Nonce,
		"notes":          notes,
		"sum":            banknotes.Sum(notes),
	})
}

// POST /api/v1/scan
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_BODY", err.Error(), ""))
		return
	}
	req.Limit = scan.EffectiveLimit(req.Limit)
	if req.TimeoutMs <= 0 || req.TimeoutMs > 20000 {
		req.TimeoutMs = 20000
	}
	res, err := s.scan.Scan(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrInvalidTarget):
			writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_TARGET", err.Error(), "targetOp"))
		case errors.Is(err, scan.ErrMissingSeed):
			writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_SEEDS", err.Error(), "seeds.server"))
		default:
			writeJSON(w, http.StatusUnprocessableEntity, errObj("INVALID_RANGE", err.Error(), "nonceEnd"))
		}
		return
	}
	s.log.Debug("scan complete",
		zap.Uint64("evaluated", res.Summary.TotalEvaluated),
		zap.Int("hits", res.Summary.HitsFound),
		zap.Bool("timedOut", res.Summary.TimedOut),
	)
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/history?limit=&offset=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := clampInt(qInt(r, "limit", 50), 1, 500)
	offset := clampInt(qInt(r, "offset", 0), 0, 1<<31-1)
	rounds, total, err := s.store.ListRounds(r.Context(), limit, offset)
	if err != nil {
		s.log.Error("list rounds", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errObj("QUERY_FAILED", "could not list rounds", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rounds": rounds,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GET /api/v1/history/stats
func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.log.Error("round stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errObj("QUERY_FAILED", "could not compute stats", ""))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /api/v1/history/export.csv
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cash_count_history.csv"`)
	if err := s.store.ExportCSV(r.Context(), w); err != nil {
		// Headers are gone by now; the truncated body is all the client gets.
		s.log.Error("export rounds", zap.Error(err))
	}
}

// ========== Helpers ==========

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errObj("NO_JOURNAL", "round journal is not available", ""))
		return false
	}
	return true
}

// localeFor prefers ?locale=, then Accept-Language, then the configured locale.
func (s *Server) localeFor(r *http.Request) string {
	if q := strings.TrimSpace(r.URL.Query().Get("locale")); q != "" && s.bundle.HasLocale(q) {
		return q
	}
	if h := r.Header.Get("Accept-Language"); strings.TrimSpace(h) != "" {
		return s.bundle.Match(h)
	}
	return s.locale
}

func (s *Server) render(r *http.Request, snap game.Snapshot) presenter.Screen {
	locale := s.localeFor(r)
	sc := presenter.Render(snap, s.bundle.Printer(locale))
	sc.Locale = locale
	return sc
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errObj(code, msg, field string) map[string]any {
	e := map[string]any{
		"code":    code,
		"message": msg,
	}
	if field != "" {
		e["field"] = field
	}
	return map[string]any{"error": e}
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
	return http.HandlerFunc(fn)
}
