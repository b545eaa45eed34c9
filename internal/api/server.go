// Package api serves token risk reports over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/odinsmash/engine/internal/ingest"
	"github.com/odinsmash/engine/internal/metrics"
	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/risk"
)

// ReportStore holds the latest report per token.
type ReportStore interface {
	Report(tokenID string) (pipeline.Report, bool)
	Reports() []pipeline.Report
	RecordReport(r pipeline.Report)
	Snapshot() metrics.MetricsSnapshot
}

// Evaluator produces a fresh report on demand. Refresh also discards any
// cached upstream data for the token.
type Evaluator interface {
	Evaluate(ctx context.Context, tokenID string) (pipeline.Report, error)
	Refresh(ctx context.Context, tokenID string) (pipeline.Report, error)
}

// evaluateTimeout bounds an on-demand evaluation triggered by a request.
const evaluateTimeout = 30 * time.Second

// Server is the HTTP API for the list view, the detail view and the
// browser extension.
type Server struct {
	httpServer *http.Server
	store      ReportStore
	evaluator  Evaluator
}

// NewServer creates a new API server bound to addr. evaluator may be nil,
// in which case only stored reports are served.
func NewServer(addr string, store ReportStore, evaluator Evaluator) *Server {
	s := &Server{
		store:     store,
		evaluator: evaluator,
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/tokens", s.handleList)
	mux.HandleFunc("GET /api/tokens/{id}", s.handleDetail)
	mux.HandleFunc("GET /api/tokens/{id}/risk", s.handleRisk)
	return loggingMiddleware(mux)
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	slog.Info("api_server_listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// tokenSummary is one row of the list view.
type tokenSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Ticker      string     `json:"ticker"`
	Price       float64    `json:"price"`
	MarketCap   float64    `json:"marketcap"`
	HolderCount int        `json:"holder_count"`
	CreatedAt   time.Time  `json:"created_at"`
	Level       risk.Level `json:"level"`
	Warning     string     `json:"warning"`
	Volume24h   float64    `json:"volume_24h"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type listResponse struct {
	Tokens []tokenSummary `json:"tokens"`
	Count  int            `json:"count"`
	Risk   string         `json:"risk"`
	Sort   string         `json:"sort"`
}

// riskResponse is the compact answer used by the browser extension.
type riskResponse struct {
	TokenID   string      `json:"token_id"`
	Level     risk.Level  `json:"level"`
	Message   string      `json:"message"`
	Warning   string      `json:"warning"`
	Stats     *risk.Stats `json:"stats,omitempty"`
	Dangers   []string    `json:"dangers,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()

	status, code := "ok", http.StatusOK
	if snap.PollStatus == "error" {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"timestamp":      time.Now(),
		"uptime":         snap.Uptime.Round(time.Second).String(),
		"tokens_tracked": snap.TokensTracked,
		"poll_status":    snap.PollStatus,
		"last_poll":      snap.LastPoll,
	})
}

// GET /api/tokens?risk=&sort=
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	level, err := risk.ParseFilter(q.Get("risk"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opt, err := pipeline.ParseSort(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports := pipeline.Filter(s.store.Reports(), level)
	pipeline.Sort(reports, opt)

	resp := listResponse{
		Tokens: make([]tokenSummary, 0, len(reports)),
		Count:  len(reports),
		Risk:   "all",
		Sort:   string(opt),
	}
	if level != "" {
		resp.Risk = level.FilterKey()
	}
	for _, rep := range reports {
		resp.Tokens = append(resp.Tokens, tokenSummary{
			ID:          rep.Token.ID,
			Name:        rep.Token.Name,
			Ticker:      rep.Token.Ticker,
			Price:       rep.Token.Price,
			MarketCap:   rep.Token.MarketCap,
			HolderCount: rep.Token.HolderCount,
			CreatedAt:   rep.Token.CreatedAt,
			Level:       rep.Assessment.Level,
			Warning:     rep.Assessment.Warning,
			Volume24h:   rep.Volume.Volume24h,
			UpdatedAt:   rep.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /api/tokens/{id}[?refresh=true]
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/tokens/{id}/risk[?refresh=true]
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lookup(w, r)
	if !ok {
		return
	}
	a := rep.Assessment
	writeJSON(w, http.StatusOK, riskResponse{
		TokenID:   rep.Token.ID,
		Level:     a.Level,
		Message:   a.Message,
		Warning:   a.Warning,
		Stats:     a.Stats,
		Dangers:   a.Dangers,
		UpdatedAt: rep.UpdatedAt,
	})
}

// lookup serves the stored report or evaluates the token on demand. It
// writes the error response itself and reports whether rep is usable.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (pipeline.Report, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return pipeline.Report{}, false
	}

	refresh := r.URL.Query().Get("refresh") == "true"
	if !refresh {
		if rep, ok := s.store.Report(id); ok {
			return rep, true
		}
	}

	if s.evaluator == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("token %s not tracked", id))
		return pipeline.Report{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), evaluateTimeout)
	defer cancel()

	evaluate := s.evaluator.Evaluate
	if refresh {
		evaluate = s.evaluator.Refresh
	}

	rep, err := evaluate(ctx, id)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("token %s not found", id))
			return pipeline.Report{}, false
		}
		slog.Warn("on_demand_evaluation_failed", "token", id, "error", err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return pipeline.Report{}, false
	}

	s.store.RecordReport(rep)
	return rep, true
}

// writeJSON encodes v before touching the response so an encoding failure
// can still be reported as a 500.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("response_encode_failed", "error", err)
		body = []byte(`{"error":"failed to encode response"}`)
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
