package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/odinsmash/engine/internal/cache"
	"github.com/odinsmash/engine/internal/store"
)

// TTLs are the cache lifetimes per kind of upstream data.
type TTLs struct {
	Tokens  time.Duration
	Token   time.Duration
	Holders time.Duration
	Creator time.Duration
	History time.Duration
	Trades  time.Duration
}

// DefaultTTLs derives per-kind lifetimes from a base TTL. Creator token
// counts change rarely and live five times longer.
func DefaultTTLs(base time.Duration) TTLs {
	return TTLs{
		Tokens:  base / 4,
		Token:   base,
		Holders: base,
		Creator: 5 * base,
		History: base,
		Trades:  base,
	}
}

// CachedSource decorates a Source with a TTL cache. Cache failures fall
// through to the wrapped source.
type CachedSource struct {
	next  Source
	cache cache.Cache
	ttl   TTLs

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedSource wraps next with c.
func NewCachedSource(next Source, c cache.Cache, ttl TTLs) *CachedSource {
	return &CachedSource{next: next, cache: c, ttl: ttl}
}

// Stats returns the cache hit and miss counters.
func (s *CachedSource) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *CachedSource) FetchTokens(ctx context.Context, limit int) ([]store.Token, error) {
	return cached(ctx, s, fmt.Sprintf("tokens:%d", limit), s.ttl.Tokens, func() ([]store.Token, error) {
		return s.next.FetchTokens(ctx, limit)
	})
}

func (s *CachedSource) FetchToken(ctx context.Context, id string) (store.Token, error) {
	return cached(ctx, s, "token:"+id, s.ttl.Token, func() (store.Token, error) {
		return s.next.FetchToken(ctx, id)
	})
}

func (s *CachedSource) FetchHolders(ctx context.Context, tokenID string) ([]store.Holder, error) {
	return cached(ctx, s, "holders:"+tokenID, s.ttl.Holders, func() ([]store.Holder, error) {
		return s.next.FetchHolders(ctx, tokenID)
	})
}

func (s *CachedSource) FetchCreatorTokenCount(ctx context.Context, creator string) (int, error) {
	return cached(ctx, s, "created:"+creator, s.ttl.Creator, func() (int, error) {
		return s.next.FetchCreatorTokenCount(ctx, creator)
	})
}

func (s *CachedSource) FetchDevActions(ctx context.Context, tokenID, user string) ([]store.DevAction, error) {
	return cached(ctx, s, "history:"+tokenID+":"+user, s.ttl.History, func() ([]store.DevAction, error) {
		return s.next.FetchDevActions(ctx, tokenID, user)
	})
}

func (s *CachedSource) FetchTrades(ctx context.Context, tokenID string) ([]store.Trade, error) {
	return cached(ctx, s, "trades:"+tokenID, s.ttl.Trades, func() ([]store.Trade, error) {
		return s.next.FetchTrades(ctx, tokenID)
	})
}

// Invalidate drops the cached entries keyed by token so the next evaluation refetches.
func (s *CachedSource) Invalidate(ctx context.Context, tokenID string) {
	s.deleteKeys(ctx, "token:"+tokenID, "holders:"+tokenID, "trades:"+tokenID)
}

// InvalidateCreator drops the creator's history on tokenID and their token count.
func (s *CachedSource) InvalidateCreator(ctx context.Context, tokenID, creator string) {
	s.deleteKeys(ctx, "history:"+tokenID+":"+creator, "created:"+creator)
}

func (s *CachedSource) deleteKeys(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.Debug("cache_delete_failed", "key", key, "error", err)
		}
	}
}

// cached serves key from the cache or calls fetch and stores the result.
// Errors are never cached.
func cached[T any](ctx context.Context, s *CachedSource, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			s.hits.Add(1)
			return v, nil
		}
		slog.Debug("cache_decode_failed", "key", key)
	} else if !errors.Is(err, cache.ErrCacheKeyNotFound) {
		slog.Warn("cache_get_failed", "key", key, "error", err)
	}
	s.misses.Add(1)

	v, err := fetch()
	if err != nil {
		return v, err
	}

	if raw, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
			slog.Warn("cache_set_failed", "key", key, "error", err)
		}
	}
	return v, nil
}
