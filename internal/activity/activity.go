// Package activity derives trading-volume and holder-growth metrics for a token.
package activity

import (
	"time"

	"github.com/odinsmash/engine/internal/store"
)

const (
	// Day is the rolling window of the "24h" figures
	Day = 24 * time.Hour
	// BaselineDays is how many days before the last 24h form the volume baseline
	BaselineDays = 6
)

// Volume is a 24h trading summary against a six-day baseline.
type Volume struct {
	Volume24h          float64 `json:"volume_24h"`
	BuyVolume24h       float64 `json:"buy_volume_24h"`
	SellVolume24h      float64 `json:"sell_volume_24h"`
	TradeCount24h      int     `json:"trade_count_24h"`
	AverageDailyVolume float64 `json:"average_daily_volume"`
	SpikeRatio         float64 `json:"spike_ratio"`
	VolumeChange       float64 `json:"volume_change"`
	BuySellRatio       float64 `json:"buy_sell_ratio"`
}

// ComputeVolume summarises trades relative to now. Trades in (now-24h, now]
// count toward the 24h figures; trades in (now-7d, now-24h] form the baseline.
func ComputeVolume(trades []store.Trade, now time.Time) Volume {
	last24h := now.Add(-Day)
	last7d := now.Add(-(BaselineDays + 1) * Day)

	var v Volume
	var baseline float64

	for _, tr := range trades {
		switch {
		case tr.Time.After(last24h):
			v.Volume24h += tr.AmountBTC
			v.TradeCount24h++
			if tr.Buy {
				v.BuyVolume24h += tr.AmountBTC
			} else {
				v.SellVolume24h += tr.AmountBTC
			}
		case tr.Time.After(last7d):
			baseline += tr.AmountBTC
		}
	}

	v.AverageDailyVolume = baseline / BaselineDays

	v.SpikeRatio = 1
	if v.AverageDailyVolume > 0 {
		v.SpikeRatio = v.Volume24h / v.AverageDailyVolume
		v.VolumeChange = (v.Volume24h - v.AverageDailyVolume) / v.AverageDailyVolume * 100
	}

	v.BuySellRatio = 1
	if v.SellVolume24h > 0 {
		v.BuySellRatio = v.BuyVolume24h / v.SellVolume24h
	}

	return v
}

// Growth is the change in holder count against the last snapshot older than a day.
type Growth struct {
	Current       int     `json:"current"`
	Previous      int     `json:"previous"`
	NewHolders    int     `json:"new_holders"`
	GrowthRate    float64 `json:"growth_rate"`
	RetentionRate float64 `json:"retention_rate"`
}

// ComputeGrowth compares the current active holders with a prior snapshot.
// A nil prior yields zero growth and full retention.
func ComputeGrowth(current []string, prior *store.HolderSnapshot) Growth {
	g := Growth{Current: len(current), RetentionRate: 100}
	if prior == nil {
		return g
	}

	g.Previous = prior.HolderCount
	g.NewHolders = g.Current - g.Previous
	if g.Previous > 0 {
		g.GrowthRate = float64(g.NewHolders) / float64(g.Previous) * 100
	}

	if len(prior.Addresses) > 0 {
		now := make(map[string]struct{}, len(current))
		for _, addr := range current {
			now[addr] = struct{}{}
		}
		kept := 0
		for _, addr := range prior.Addresses {
			if _, ok := now[addr]; ok {
				kept++
			}
		}
		g.RetentionRate = float64(kept) / float64(len(prior.Addresses)) * 100
	}

	return g
}

// Snapshot builds the holder snapshot to persist after computing growth.
func Snapshot(tokenID string, current []string, g Growth, at time.Time) store.HolderSnapshot {
	newHolders := g.NewHolders
	if g.Previous == 0 && g.NewHolders == 0 {
		newHolders = g.Current
	}
	return store.HolderSnapshot{
		TokenID:     tokenID,
		HolderCount: g.Current,
		NewHolders:  newHolders,
		GrowthRate:  g.GrowthRate,
		Addresses:   current,
		CreatedAt:   at,
	}
}
