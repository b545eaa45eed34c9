// Package ingest fetches token, holder and trade data from the upstream API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odinsmash/engine/internal/store"
)

const (
	// DefaultBaseURL is the upstream token API
	DefaultBaseURL = "https://api.odin.fun/v1"
	// DefaultTokenLimit is the number of tokens listed per poll
	DefaultTokenLimit = 50
	// DefaultTimeout is the per-request HTTP timeout
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 16 << 20
)

// ErrNotFound is returned when the upstream has no such resource.
var ErrNotFound = errors.New("not found")

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Unwrap maps 404 onto ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Source provides same-snapshot token data for risk evaluation.
type Source interface {
	FetchTokens(ctx context.Context, limit int) ([]store.Token, error)
	FetchToken(ctx context.Context, id string) (store.Token, error)
	FetchHolders(ctx context.Context, tokenID string) ([]store.Holder, error)
	FetchCreatorTokenCount(ctx context.Context, creator string) (int, error)
	FetchDevActions(ctx context.Context, tokenID, user string) ([]store.DevAction, error)
	FetchTrades(ctx context.Context, tokenID string) ([]store.Trade, error)
}

// Client talks to the upstream REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	backoff Backoff
}

// NewClient creates a new Client. Zero values fall back to defaults.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	backoff := DefaultBackoff()
	if maxRetries >= 0 {
		backoff.MaxRetries = maxRetries
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		backoff: backoff,
	}
}

// SetBackoff replaces the retry schedule.
func (c *Client) SetBackoff(b Backoff) {
	c.backoff = b
}

// FetchTokens lists up to limit tokens.
func (c *Client) FetchTokens(ctx context.Context, limit int) ([]store.Token, error) {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}

	body, err := c.get(ctx, "/api/all-tokens", url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}

	list, err := decodeList[tokenData](body)
	if err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}

	tokens := make([]store.Token, 0, len(list))
	for _, td := range list {
		token, err := convertToken(td)
		if err != nil {
			slog.Debug("token_skipped", "error", err)
			continue
		}
		tokens = append(tokens, token)
		if len(tokens) == limit {
			break
		}
	}
	return tokens, nil
}

// FetchToken fetches a single token's metadata.
func (c *Client) FetchToken(ctx context.Context, id string) (store.Token, error) {
	body, err := c.get(ctx, "/api/token/"+url.PathEscape(id), nil)
	if err != nil {
		return store.Token{}, err
	}

	td, err := decodeObject[tokenData](body)
	if err != nil {
		return store.Token{}, fmt.Errorf("decode token %s: %w", id, err)
	}
	return convertToken(td)
}

// FetchHolders fetches the full holder list of a token.
func (c *Client) FetchHolders(ctx context.Context, tokenID string) ([]store.Holder, error) {
	body, err := c.get(ctx, "/api/token/"+url.PathEscape(tokenID)+"/owners", nil)
	if err != nil {
		return nil, err
	}

	list, err := decodeList[ownerData](body)
	if err != nil {
		return nil, fmt.Errorf("decode owners of %s: %w", tokenID, err)
	}
	return convertHolders(list), nil
}

// FetchCreatorTokenCount returns how many tokens creator has launched.
func (c *Client) FetchCreatorTokenCount(ctx context.Context, creator string) (int, error) {
	if creator == "" {
		return 0, nil
	}

	body, err := c.get(ctx, "/api/user/"+url.PathEscape(creator)+"/created", nil)
	if err != nil {
		return 0, err
	}

	list, err := decodeList[map[string]any](body)
	if err != nil {
		return 0, fmt.Errorf("decode created tokens of %s: %w", creator, err)
	}
	return len(list), nil
}

// FetchDevActions fetches user's buy/sell history on a token.
func (c *Client) FetchDevActions(ctx context.Context, tokenID, user string) ([]store.DevAction, error) {
	if user == "" {
		return nil, nil
	}

	body, err := c.get(ctx, "/api/token/"+url.PathEscape(tokenID)+"/history", url.Values{"user": {user}})
	if err != nil {
		return nil, err
	}

	list, err := decodeList[historyData](body)
	if err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", tokenID, err)
	}
	return convertHistory(list), nil
}

// FetchTrades fetches recent trades on a token.
func (c *Client) FetchTrades(ctx context.Context, tokenID string) ([]store.Trade, error) {
	body, err := c.get(ctx, "/api/token/"+url.PathEscape(tokenID)+"/trades", nil)
	if err != nil {
		return nil, err
	}

	list, err := decodeList[tradeData](body)
	if err != nil {
		return nil, fmt.Errorf("decode trades of %s: %w", tokenID, err)
	}
	return convertTrades(list), nil
}

// get performs a GET with retry and returns the response body.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("upstream_retry", "url", u, "attempt", attempt, "error", lastErr)
			if err := c.backoff.wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		body, retry, err := c.do(ctx, u)
		if err == nil {
			return body, nil
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("giving up after %d retries: %w", c.backoff.MaxRetries, lastErr)
}

// do performs one request. The bool reports whether the failure is retryable.
func (c *Client) do(ctx context.Context, u string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, retryableStatus(resp.StatusCode), &StatusError{Code: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read body failed: %w", err)
	}
	return body, false, nil
}
