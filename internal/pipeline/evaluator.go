// Package pipeline turns token ids into risk reports.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odinsmash/engine/internal/activity"
	"github.com/odinsmash/engine/internal/ingest"
	"github.com/odinsmash/engine/internal/risk"
	"github.com/odinsmash/engine/internal/store"
)

// HistoryRepo persists holder snapshots between evaluations.
type HistoryRepo interface {
	Save(ctx context.Context, snap store.HolderSnapshot) error
	Before(ctx context.Context, tokenID string, t time.Time) (*store.HolderSnapshot, error)
}

// Report is everything the dashboard shows for one token.
type Report struct {
	Token         store.Token      `json:"token"`
	Holders       []store.Holder   `json:"holders"`
	ActiveHolders int              `json:"active_holders"`
	Assessment    risk.Assessment  `json:"assessment"`
	Volume        activity.Volume  `json:"volume"`
	Growth        activity.Growth  `json:"growth"`
	DevTrading    *risk.DevTrading `json:"dev_trading,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Level is shorthand for the report's risk level.
func (r Report) Level() risk.Level {
	return r.Assessment.Level
}

// DefaultSnapshotInterval is the minimum spacing of persisted holder snapshots per token.
const DefaultSnapshotInterval = time.Hour

// Evaluator fetches one consistent snapshot per token and assesses it.
type Evaluator struct {
	source   ingest.Source
	history  HistoryRepo
	assessor *risk.Assessor

	// SnapshotInterval throttles history writes; tokens are re-evaluated on
	// every poll but growth only needs a coarse series.
	SnapshotInterval time.Duration

	mu        sync.Mutex
	lastSaved map[string]time.Time

	// now is replaceable in tests
	now func() time.Time
}

// NewEvaluator creates an Evaluator. history may be nil, in which case
// growth is always computed against no prior snapshot.
func NewEvaluator(source ingest.Source, history HistoryRepo, assessor *risk.Assessor) *Evaluator {
	if assessor == nil {
		assessor = risk.NewAssessor(risk.TrustedTokens, risk.TrustedDevelopers)
	}
	return &Evaluator{
		source:           source,
		history:          history,
		assessor:         assessor,
		SnapshotInterval: DefaultSnapshotInterval,
		lastSaved:        make(map[string]time.Time),
		now:              time.Now,
	}
}

// invalidator is implemented by sources that cache upstream responses.
type invalidator interface {
	Invalidate(ctx context.Context, tokenID string)
	InvalidateCreator(ctx context.Context, tokenID, creator string)
}

// Refresh drops any cached upstream data for tokenID before evaluating it.
// Creator-keyed entries are dropped once the fresh record names the creator.
func (e *Evaluator) Refresh(ctx context.Context, tokenID string) (Report, error) {
	inv, ok := e.source.(invalidator)
	if !ok {
		return e.Evaluate(ctx, tokenID)
	}

	inv.Invalidate(ctx, tokenID)
	token, err := e.source.FetchToken(ctx, tokenID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch token %s: %w", tokenID, err)
	}
	if token.Creator != "" {
		inv.InvalidateCreator(ctx, token.ID, token.Creator)
	}
	return e.evaluate(ctx, token)
}

// Evaluate fetches the token, then its holders and enrichment in parallel,
// and runs the assessor once over that data. Only a failed token fetch is
// an error; a failed holder fetch yields a PENDING report and enrichment
// failures are logged and skipped.
func (e *Evaluator) Evaluate(ctx context.Context, tokenID string) (Report, error) {
	token, err := e.source.FetchToken(ctx, tokenID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch token %s: %w", tokenID, err)
	}
	return e.evaluate(ctx, token)
}

func (e *Evaluator) evaluate(ctx context.Context, token store.Token) (Report, error) {
	now := e.now()

	var (
		holders      []store.Holder
		creatorCount int
		actions      []store.DevAction
		trades       []store.Trade
		prior        *store.HolderSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h, err := e.source.FetchHolders(gctx, token.ID)
		if err != nil {
			slog.Warn("holders_fetch_failed", "token", token.ID, "error", err)
			return nil
		}
		holders = h
		return nil
	})

	if token.Creator != "" && !e.assessor.IsTrustedToken(token.ID) {
		if !e.assessor.IsTrustedDeveloper(token.Creator) {
			g.Go(func() error {
				n, err := e.source.FetchCreatorTokenCount(gctx, token.Creator)
				if err != nil {
					slog.Debug("creator_fetch_failed", "token", token.ID, "creator", token.Creator, "error", err)
					return nil
				}
				creatorCount = n
				return nil
			})
		}

		g.Go(func() error {
			a, err := e.source.FetchDevActions(gctx, token.ID, token.Creator)
			if err != nil {
				slog.Debug("dev_history_fetch_failed", "token", token.ID, "error", err)
				return nil
			}
			actions = a
			return nil
		})
	}

	g.Go(func() error {
		t, err := e.source.FetchTrades(gctx, token.ID)
		if err != nil {
			slog.Debug("trades_fetch_failed", "token", token.ID, "error", err)
			return nil
		}
		trades = t
		return nil
	})

	if e.history != nil {
		g.Go(func() error {
			p, err := e.history.Before(gctx, token.ID, now.Add(-activity.Day))
			if err != nil {
				slog.Warn("history_lookup_failed", "token", token.ID, "error", err)
				return nil
			}
			prior = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	rctx := risk.Context{CreatorTokenCount: creatorCount}
	var devTrading *risk.DevTrading
	if len(actions) > 0 {
		dt := risk.AnalyzeDevTrading(actions)
		devTrading = &dt
		rctx.DevTrading = devTrading
	}

	assessment := e.assessor.Assess(token, holders, rctx)

	active := risk.ActiveHolders(holders)
	if token.HolderCount == store.HolderCountUnknown {
		token.HolderCount = len(active)
	}
	addresses := make([]string, len(active))
	for i, h := range active {
		addresses[i] = h.User
	}

	growth := activity.ComputeGrowth(addresses, prior)

	// An empty list means the owners endpoint failed or lagged; persisting it
	// would read as a mass exit on the next comparison.
	if e.history != nil && len(active) > 0 && e.snapshotDue(token.ID, now) {
		snap := activity.Snapshot(token.ID, addresses, growth, now)
		if err := e.history.Save(ctx, snap); err != nil {
			slog.Warn("history_save_failed", "token", token.ID, "error", err)
			e.mu.Lock()
			delete(e.lastSaved, token.ID)
			e.mu.Unlock()
		}
	}

	return Report{
		Token:         token,
		Holders:       holders,
		ActiveHolders: len(active),
		Assessment:    assessment,
		Volume:        activity.ComputeVolume(trades, now),
		Growth:        growth,
		DevTrading:    devTrading,
		UpdatedAt:     now,
	}, nil
}

// snapshotDue reports whether a snapshot of tokenID should be written at now
// and, if so, records the write.
func (e *Evaluator) snapshotDue(tokenID string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastSaved[tokenID]; ok && now.Sub(last) < e.SnapshotInterval {
		return false
	}
	e.lastSaved[tokenID] = now
	return true
}

// Sink receives the outcome of every evaluation.
type Sink interface {
	RecordReport(r Report)
	RecordError(tokenID string, err error)
}

// Run evaluates ids from jobs on a fixed number of workers until ctx is
// cancelled or jobs is closed. It blocks until every worker has returned.
func (e *Evaluator) Run(ctx context.Context, workers int, jobs <-chan string, sink Sink) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id, jobs, sink)
		}(i)
	}
	wg.Wait()
}

// worker processes token ids until the context ends or the channel closes.
func (e *Evaluator) worker(ctx context.Context, id int, jobs <-chan string, sink Sink) {
	slog.Debug("worker_started", "id", id)
	defer slog.Debug("worker_stopped", "id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case tokenID, ok := <-jobs:
			if !ok {
				return
			}

			report, err := e.Evaluate(ctx, tokenID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("evaluation_failed", "token", tokenID, "error", err)
				sink.RecordError(tokenID, err)
				continue
			}

			slog.Debug("token_evaluated",
				"token", tokenID,
				"level", report.Assessment.Level,
				"holders", report.ActiveHolders,
			)
			sink.RecordReport(report)
		}
	}
}
