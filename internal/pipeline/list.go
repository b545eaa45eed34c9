package pipeline

import (
	"fmt"
	"sort"

	"github.com/odinsmash/engine/internal/risk"
)

// SortOption is a list-view ordering.
type SortOption string

const (
	SortNewest      SortOption = "newest"
	SortOldest      SortOption = "oldest"
	SortPriceHigh   SortOption = "price_high"
	SortPriceLow    SortOption = "price_low"
	SortHoldersHigh SortOption = "holders_high"
	SortHoldersLow  SortOption = "holders_low"
	SortRiskHigh    SortOption = "risk_high"
	SortRiskLow     SortOption = "risk_low"
)

// SortOptions lists every ordering in the order the UI cycles through them.
var SortOptions = []SortOption{
	SortNewest,
	SortOldest,
	SortPriceHigh,
	SortPriceLow,
	SortHoldersHigh,
	SortHoldersLow,
	SortRiskHigh,
	SortRiskLow,
}

// ParseSort validates a sort key. An empty key means newest first.
func ParseSort(key string) (SortOption, error) {
	if key == "" {
		return SortNewest, nil
	}
	for _, opt := range SortOptions {
		if string(opt) == key {
			return opt, nil
		}
	}
	return "", fmt.Errorf("unknown sort option %q", key)
}

// Filter returns the reports at the given level. An empty level keeps all.
// The input slice is not modified.
func Filter(reports []Report, level risk.Level) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if level == "" || r.Assessment.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// Sort orders reports in place. Ties fall back to token id so repeated
// renders are stable. Under either risk ordering PENDING comes last.
func Sort(reports []Report, opt SortOption) {
	less := lessFunc(opt)
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if opt == SortRiskHigh || opt == SortRiskLow {
			ap, bp := a.Assessment.Level == risk.LevelPending, b.Assessment.Level == risk.LevelPending
			if ap != bp {
				return bp
			}
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.Token.ID < b.Token.ID
	})
}

func lessFunc(opt SortOption) func(a, b Report) bool {
	switch opt {
	case SortOldest:
		return func(a, b Report) bool { return a.Token.CreatedAt.Before(b.Token.CreatedAt) }
	case SortPriceHigh:
		return func(a, b Report) bool { return a.Token.Price > b.Token.Price }
	case SortPriceLow:
		return func(a, b Report) bool { return a.Token.Price < b.Token.Price }
	case SortHoldersHigh:
		return func(a, b Report) bool { return a.Token.HolderCount > b.Token.HolderCount }
	case SortHoldersLow:
		return func(a, b Report) bool { return a.Token.HolderCount < b.Token.HolderCount }
	case SortRiskHigh:
		return func(a, b Report) bool { return a.Assessment.Level.Severity() > b.Assessment.Level.Severity() }
	case SortRiskLow:
		return func(a, b Report) bool { return a.Assessment.Level.Severity() < b.Assessment.Level.Severity() }
	default:
		return func(a, b Report) bool { return a.Token.CreatedAt.After(b.Token.CreatedAt) }
	}
}
