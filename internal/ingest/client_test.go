package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastBackoff(retries int) Backoff {
	return Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2, MaxRetries: retries}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "secret", time.Second, 3)
	c.SetBackoff(fastBackoff(3))
	return c
}

func TestFetchToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token/abc" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("Expected api key header")
		}
		w.Write([]byte(`{"id":"abc","name":" Odin Dog ","ticker":"ODOG","creator":"dev1",
			"total_supply":21000000000000000,"holder_count":"42",
			"btc_liquidity":"1500","token_liquidity":900,"price":12.5,"marketcap":1000,
			"created_time":"2025-01-02T03:04:05Z"}`))
	})

	token, err := c.FetchToken(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}
	if token.Name != "Odin Dog" || token.Creator != "dev1" {
		t.Errorf("Unexpected token %+v", token)
	}
	if token.TotalSupply != "21000000000000000" {
		t.Errorf("Expected raw supply literal, got %q", token.TotalSupply)
	}
	if token.HolderCount != 42 {
		t.Errorf("Expected holder count 42, got %d", token.HolderCount)
	}
	if token.Liquidity == nil || token.Liquidity.BTC != 1500 || token.Liquidity.Token != 900 {
		t.Errorf("Unexpected liquidity %+v", token.Liquidity)
	}
	if token.CreatorBalance != nil {
		t.Errorf("Expected no legacy creator balance, got %v", *token.CreatorBalance)
	}
	if token.CreatedAt.Year() != 2025 {
		t.Errorf("Expected created time to parse, got %v", token.CreatedAt)
	}
}

func TestFetchTokenEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"abc","holder_count":3,"total_supply":"100"}}`))
	})

	token, err := c.FetchToken(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}
	if token.ID != "abc" || token.HolderCount != 3 {
		t.Errorf("Unexpected token %+v", token)
	}
	if token.Liquidity != nil {
		t.Errorf("Expected untracked liquidity, got %+v", token.Liquidity)
	}
}

func TestFetchTokenWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"ghost"}`))
	})
	if _, err := c.FetchToken(context.Background(), "x"); err == nil {
		t.Error("Expected validation error for token without id")
	}
}

func TestFetchHolders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"user":"dev1","balance":"600000","user_username":"dev"},
			{"user":"u2","balance":1234},
			{"user":"","balance":"5"}
		],"total_supply":"1000000"}`))
	})

	holders, err := c.FetchHolders(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchHolders failed: %v", err)
	}
	if len(holders) != 2 {
		t.Fatalf("Expected 2 holders, got %d", len(holders))
	}
	if holders[1].Balance != "1234" {
		t.Errorf("Expected numeric balance kept as text, got %q", holders[1].Balance)
	}
	if holders[0].Username != "dev" {
		t.Errorf("Expected username, got %q", holders[0].Username)
	}
}

func TestFetchCreatorTokenCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/dev1/created" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`))
	})

	n, err := c.FetchCreatorTokenCount(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("FetchCreatorTokenCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3, got %d", n)
	}
}

func TestFetchDevActions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user") != "dev1" {
			t.Errorf("Expected user query, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[
			{"type":"sell","amount":"100","time":"2025-01-02T00:00:00Z"},
			{"type":"transfer","amount":"5","time":"2025-01-01T12:00:00Z"},
			{"type":"buy","amount":1000,"time":1735689600000}
		]}`))
	})

	actions, err := c.FetchDevActions(context.Background(), "abc", "dev1")
	if err != nil {
		t.Fatalf("FetchDevActions failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(actions))
	}
	if actions[0].Action != "SELL" || actions[1].Action != "BUY" {
		t.Errorf("Unexpected actions %+v", actions)
	}
	if !actions[1].Time.Equal(time.UnixMilli(1735689600000)) {
		t.Errorf("Expected millisecond timestamp, got %v", actions[1].Time)
	}
}

func TestFetchTradesScalesAmounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"user":"u","buy":true,"amount_btc":"250000000000","price_btc":3,"time":"2025-01-02T00:00:00Z"}]`))
	})

	trades, err := c.FetchTrades(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchTrades failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if trades[0].AmountBTC != 2.5 {
		t.Errorf("Expected 2.5 BTC, got %v", trades[0].AmountBTC)
	}
	if trades[0].ID != "7" || !trades[0].Buy {
		t.Errorf("Unexpected trade %+v", trades[0])
	}
}

func TestFetchTokensLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("Expected limit=2, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"id":"a"},{"id":""},{"id":"b"},{"id":"c"}]}`))
	})

	tokens, err := c.FetchTokens(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchTokens failed: %v", err)
	}
	if len(tokens) != 2 || tokens[0].ID != "a" || tokens[1].ID != "b" {
		t.Errorf("Unexpected tokens %+v", tokens)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusForbidden)
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	})

	if _, err := c.FetchHolders(context.Background(), "abc"); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchTrades(context.Background(), "abc")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected StatusError 503, got %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("Expected 1 call plus 3 retries, got %d", calls.Load())
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	})

	_, err := c.FetchToken(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single call, got %d", calls.Load())
	}
}

func TestRetryHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c.SetBackoff(Backoff{Initial: time.Hour, Max: time.Hour, Factor: 2, MaxRetries: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchHolders(ctx, "abc")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Expected cancellation to abort the backoff wait")
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 4 * time.Second, Factor: 2, Jitter: 0.2}

	cases := []struct {
		attempt int
		base    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 4 * time.Second},
	}
	for _, tc := range cases {
		d := b.Delay(tc.attempt)
		lo := time.Duration(float64(tc.base) * 0.8)
		hi := time.Duration(float64(tc.base) * 1.2)
		if d < lo || d > hi {
			t.Errorf("attempt %d: expected delay within [%v, %v], got %v", tc.attempt, lo, hi, d)
		}
	}
}
