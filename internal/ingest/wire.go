package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/odinsmash/engine/internal/store"
)

// BTCScale converts raw trade amounts (1e-11 BTC units) to whole BTC.
const BTCScale = 1e11

// flexString accepts a JSON string or number and keeps its literal text.
// Raw balances and supplies arrive either way depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", truncate(string(b), 32))
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or numeric string. Unparseable or
// non-finite values decode to 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexFloat(parseFloat(string(s)))
	return nil
}

// envelope is the {"data": ...} wrapper most endpoints use.
type envelope[T any] struct {
	Data T `json:"data"`
}

// tokenData is the token record as served by the upstream API.
type tokenData struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Ticker         string      `json:"ticker"`
	Creator        string      `json:"creator"`
	TotalSupply    flexString  `json:"total_supply"`
	HolderCount    *flexFloat  `json:"holder_count"`
	BTCLiquidity   *flexFloat  `json:"btc_liquidity"`
	TokenLiquidity *flexFloat  `json:"token_liquidity"`
	CreatorBalance *flexString `json:"creator_balance"`
	Price          flexFloat   `json:"price"`
	MarketCap      flexFloat   `json:"marketcap"`
	Volume         flexFloat   `json:"volume"`
	CreatedTime    flexString  `json:"created_time"`
	CreatedAt      flexString  `json:"created_at"`
}

type ownerData struct {
	User         string     `json:"user"`
	Balance      flexString `json:"balance"`
	UserUsername string     `json:"user_username"`
}

type historyData struct {
	Type   string     `json:"type"`
	Action string     `json:"action"`
	Amount flexString `json:"amount"`
	Time   flexString `json:"time"`
}

type tradeData struct {
	ID        flexString `json:"id"`
	User      string     `json:"user"`
	Buy       bool       `json:"buy"`
	AmountBTC flexFloat  `json:"amount_btc"`
	PriceBTC  flexFloat  `json:"price_btc"`
	Time      flexString `json:"time"`
}

// decodeList accepts either a bare JSON array or a {"data": [...]} envelope.
func decodeList[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []T
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var env envelope[[]T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// decodeObject accepts either a bare object or a {"data": {...}} envelope.
func decodeObject[T any](body []byte) (T, error) {
	var out T
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil {
		if raw := bytes.TrimSpace(env.Data); len(raw) > 0 && raw[0] == '{' {
			body = raw
		}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, err
	}
	return out, nil
}

// convertToken validates and converts an upstream token record.
func convertToken(td tokenData) (store.Token, error) {
	id := strings.TrimSpace(td.ID)
	if id == "" {
		return store.Token{}, fmt.Errorf("token record without id")
	}

	token := store.Token{
		ID:          id,
		Name:        strings.TrimSpace(td.Name),
		Ticker:      strings.TrimSpace(td.Ticker),
		Creator:     strings.TrimSpace(td.Creator),
		TotalSupply: string(td.TotalSupply),
		HolderCount: store.HolderCountUnknown,
		Price:       float64(td.Price),
		MarketCap:   float64(td.MarketCap),
		Volume:      float64(td.Volume),
		CreatedAt:   parseTimestamp(string(td.CreatedTime), string(td.CreatedAt)),
	}

	if td.HolderCount != nil {
		token.HolderCount = int(*td.HolderCount)
	}

	if td.BTCLiquidity != nil || td.TokenLiquidity != nil {
		liq := &store.Liquidity{}
		if td.BTCLiquidity != nil {
			liq.BTC = float64(*td.BTCLiquidity)
		}
		if td.TokenLiquidity != nil {
			liq.Token = float64(*td.TokenLiquidity)
		}
		token.Liquidity = liq
	}

	if td.CreatorBalance != nil && *td.CreatorBalance != "" {
		cb := string(*td.CreatorBalance)
		token.CreatorBalance = &cb
	}

	return token, nil
}

// convertHolders drops records without a user.
func convertHolders(data []ownerData) []store.Holder {
	holders := make([]store.Holder, 0, len(data))
	for _, od := range data {
		user := strings.TrimSpace(od.User)
		if user == "" {
			continue
		}
		holders = append(holders, store.Holder{
			User:     user,
			Balance:  string(od.Balance),
			Username: strings.TrimSpace(od.UserUsername),
		})
	}
	return holders
}

// convertHistory normalises history entries to BUY/SELL actions.
// Entries of other types (transfers, mints) are skipped.
func convertHistory(data []historyData) []store.DevAction {
	actions := make([]store.DevAction, 0, len(data))
	for _, hd := range data {
		action := strings.ToUpper(coalesce(hd.Action, hd.Type))
		if action != store.ActionBuy && action != store.ActionSell {
			continue
		}
		actions = append(actions, store.DevAction{
			Action: action,
			Amount: string(hd.Amount),
			Time:   parseTimestamp(string(hd.Time)),
		})
	}
	return actions
}

// convertTrades scales BTC amounts once, here at the boundary.
func convertTrades(data []tradeData) []store.Trade {
	trades := make([]store.Trade, 0, len(data))
	for _, td := range data {
		trades = append(trades, store.Trade{
			ID:        string(td.ID),
			User:      strings.TrimSpace(td.User),
			Buy:       td.Buy,
			AmountBTC: float64(td.AmountBTC) / BTCScale,
			PriceBTC:  float64(td.PriceBTC),
			Time:      parseTimestamp(string(td.Time)),
		})
	}
	return trades
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseFloat safely parses a string to float64. NaN and infinities,
// which strconv accepts, are treated as garbage.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseTimestamp tries unix seconds/milliseconds and common layouts.
// It returns the zero time when nothing matches.
func parseTimestamp(values ...string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			if ts > 1e12 {
				return time.UnixMilli(ts)
			}
			return time.Unix(ts, 0)
		}

		for _, format := range formats {
			if t, err := time.Parse(format, v); err == nil {
				return t
			}
		}
	}

	return time.Time{}
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
