package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odinsmash/engine/internal/store"
)

// DefaultPollInterval is how often the visible token list is refreshed.
const DefaultPollInterval = 15 * time.Second

// TokenPoller periodically lists tokens and queues their ids for evaluation.
type TokenPoller struct {
	source   Source
	limit    int
	interval time.Duration
	jobs     chan<- string

	// OnPoll, if set, is called after every poll with the listed tokens or the error.
	OnPoll func(tokens []store.Token, err error)
}

// NewTokenPoller creates a new TokenPoller.
func NewTokenPoller(source Source, limit int, interval time.Duration, jobs chan<- string) *TokenPoller {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &TokenPoller{
		source:   source,
		limit:    limit,
		interval: interval,
		jobs:     jobs,
	}
}

// Start polls until ctx is cancelled.
func (p *TokenPoller) Start(ctx context.Context) {
	slog.Info("starting_token_poller", "limit", p.limit, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial fetch
	if err := p.Poll(ctx); err != nil {
		slog.Warn("initial_poll_failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("token_poller_stopped")
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				slog.Warn("poll_failed", "error", err)
			}
		}
	}
}

// Poll lists tokens once and queues every id without blocking.
func (p *TokenPoller) Poll(ctx context.Context) error {
	tokens, err := p.source.FetchTokens(ctx, p.limit)
	if p.OnPoll != nil {
		p.OnPoll(tokens, err)
	}
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	slog.Debug("tokens_fetched", "count", len(tokens))

	for _, token := range tokens {
		select {
		case p.jobs <- token.ID:
		case <-ctx.Done():
			return ctx.Err()
		default:
			slog.Warn("job_channel_full", "dropped_token", token.ID)
		}
	}

	return nil
}
