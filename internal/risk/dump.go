package risk

import (
	"fmt"
	"strings"

	"github.com/odinsmash/engine/internal/store"
	"github.com/shopspring/decimal"
)

// Dump-and-rebuy thresholds
const (
	DumpMinSells       = 3
	DumpMinPercentSold = 20.0
)

// DevTrading summarises the creator's trade history on one token.
type DevTrading struct {
	SellCount      int     `json:"sell_count"`
	BuyCount       int     `json:"buy_count"`
	TotalSold      string  `json:"total_sold"`
	InitialBalance string  `json:"initial_balance"`
	PercentageSold float64 `json:"percentage_sold"`
	DumpAndRebuy   bool    `json:"dump_and_rebuy"`
}

// Describe renders the dump-and-rebuy danger string.
func (d DevTrading) Describe() string {
	return fmt.Sprintf("Developer dumped and re-bought (%d sells / %d buys, %.2f%% sold)",
		d.SellCount, d.BuyCount, d.PercentageSold)
}

// AnalyzeDevTrading scans a creator's history on a token. The initial balance
// is the amount of the earliest entry; entries with equal times keep input order.
func AnalyzeDevTrading(actions []store.DevAction) DevTrading {
	var (
		out       DevTrading
		sold      = decimal.Zero
		initial   = decimal.Zero
		firstSeen bool
		firstIdx  int
	)

	for i, a := range actions {
		if !firstSeen || a.Time.Before(actions[firstIdx].Time) {
			firstIdx = i
			firstSeen = true
		}

		amount, ok := parseAmount(a.Amount)
		if !ok || amount.IsNegative() {
			amount = decimal.Zero
		}

		switch strings.ToUpper(a.Action) {
		case store.ActionSell:
			out.SellCount++
			sold = sold.Add(amount)
		case store.ActionBuy:
			out.BuyCount++
		}
	}

	if firstSeen {
		if v, ok := parseAmount(actions[firstIdx].Amount); ok {
			initial = v
		}
	}

	if initial.IsPositive() {
		out.PercentageSold = percentOf(sold, initial)
	}
	out.TotalSold = sold.String()
	out.InitialBalance = initial.String()
	out.DumpAndRebuy = out.SellCount >= DumpMinSells &&
		out.BuyCount > 0 &&
		out.PercentageSold >= DumpMinPercentSold

	return out
}
