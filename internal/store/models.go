// Package store provides data models and holder-history persistence.
package store

import "time"

// HolderCountUnknown marks a token record that did not report a holder count.
const HolderCountUnknown = -1

// Token is the metadata snapshot of a single listed token.
type Token struct {
	// ID is the platform identifier of the token
	ID string `json:"id"`

	Name   string `json:"name"`
	Ticker string `json:"ticker"`

	// Creator is the account that deployed the token
	Creator string `json:"creator"`

	// TotalSupply is the raw, unscaled supply (string to preserve precision)
	TotalSupply string `json:"total_supply"`

	// HolderCount is the holder count reported by the platform, or
	// HolderCountUnknown when the record omitted it
	HolderCount int `json:"holder_count"`

	// Liquidity is nil when the caller does not track pool liquidity
	Liquidity *Liquidity `json:"liquidity,omitempty"`

	// CreatorBalance is a legacy field used only when no holder list exists
	CreatorBalance *string `json:"creator_balance,omitempty"`

	Price     float64   `json:"price"`
	MarketCap float64   `json:"market_cap"`
	Volume    float64   `json:"volume"`
	CreatedAt time.Time `json:"created_at"`
}

// Liquidity is the paired pool depth of a token.
type Liquidity struct {
	BTC   float64 `json:"btc"`
	Token float64 `json:"token"`
}

// Holder is one entry of a token's holder list.
type Holder struct {
	User     string `json:"user"`
	Balance  string `json:"balance"`
	Username string `json:"username,omitempty"`
}

// Dev trade actions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// DevAction is one entry of the creator's trade history on a token.
type DevAction struct {
	Action string    `json:"action"`
	Amount string    `json:"amount"`
	Time   time.Time `json:"time"`
}

// Trade is a single executed trade on a token.
type Trade struct {
	ID   string `json:"id"`
	User string `json:"user"`

	// Buy is false for sells
	Buy bool `json:"buy"`

	// AmountBTC is already scaled to whole BTC
	AmountBTC float64 `json:"amount_btc"`
	PriceBTC  float64 `json:"price_btc"`

	Time time.Time `json:"time"`
}

// HolderSnapshot is one point of a token's holder-count timeseries.
type HolderSnapshot struct {
	TokenID     string    `json:"token_id"`
	HolderCount int       `json:"holder_count"`
	NewHolders  int       `json:"new_holders"`
	GrowthRate  float64   `json:"growth_rate"`
	Addresses   []string  `json:"addresses,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
