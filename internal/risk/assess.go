// Package risk classifies tokens by holder concentration and creator behaviour.
//
// Everything in this package is pure: no I/O, no clocks, no shared mutable
// state. Callers fetch token and holder data from the same snapshot and pass
// any enrichment through Context.
package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odinsmash/engine/internal/store"
	"github.com/shopspring/decimal"
)

// PlatformToken is the platform's own token id.
const PlatformToken = "2ait"

// TrustedTokens are token ids exempt from every heuristic.
var TrustedTokens = []string{PlatformToken}

// TrustedDevelopers are creators exempt from the serial-creator check.
var TrustedDevelopers = []string{
	"vv5jb-7sm7u-vn3nq-6nflf-dghis-fd7ji-cx764-xunni-zosog-eqvpw-oae",
}

// Fixed classification texts
const (
	MsgTrusted      = "Platform token with verified distribution"
	WarnTrusted     = "VERIFIED: Official platform token"
	MsgRugged       = "Token has been rugged - All holders have sold"
	WarnRugged      = "DANGER: Token has 0 holders"
	MsgNoLiquidity  = "No liquidity available - High manipulation risk"
	WarnNoLiquidity = "DANGER: No liquidity"
	MsgPending      = "Holder data not yet available"
	WarnPending     = "PENDING: Waiting for holder data"
	MsgBadSupply    = "Token supply unavailable"
	MsgAbandonment  = "Multiple high-risk factors detected - Extreme risk of abandonment"
	MsgFewHolders   = "Very low holder count - Major price manipulation risk"
	WarnFewHolders  = "WARNING: Few holders"

	DangerDevSold = "Developer has sold their entire position"
)

// levelMessages holds the per-level message of the concentration ladder.
var levelMessages = map[Level]string{
	LevelExtreme:  "Extremely high centralization. High probability of price manipulation.",
	LevelVeryHigh: "Very high centralization detected. Major price manipulation risk.",
	LevelHigh:     "High holder concentration. Exercise extreme caution.",
	LevelModerate: "Moderate centralization risks present. Trade carefully.",
	LevelElevated: "Slightly elevated concentration risks. Monitor closely.",
	LevelGuarded:  "Low centralization risks, but remain vigilant.",
	LevelLow:      "Healthy token distribution detected.",
}

// minLegacyHolders is the holder count below which the legacy path floors the level.
const minLegacyHolders = 10

// Stats are holder concentration percentages over total supply.
type Stats struct {
	DevPercentage   float64 `json:"dev_percentage"`
	Top5Percentage  float64 `json:"top5_percentage"`
	Top10Percentage float64 `json:"top10_percentage"`
}

// Assessment is the result of a risk evaluation.
type Assessment struct {
	Level   Level    `json:"level"`
	Message string   `json:"message"`
	Warning string   `json:"warning"`
	Stats   *Stats   `json:"stats,omitempty"`
	Dangers []string `json:"dangers,omitempty"`
}

// Context carries optional enrichment gathered outside the assessor.
type Context struct {
	// CreatorTokenCount is the number of tokens the creator has launched; 0 means unknown
	CreatorTokenCount int

	// DevTrading is the creator's trading summary on this token, if fetched
	DevTrading *DevTrading
}

// Assessor evaluates tokens against a pair of allowlists.
type Assessor struct {
	trustedTokens map[string]struct{}
	trustedDevs   map[string]struct{}
}

// NewAssessor creates an Assessor with the given allowlists.
func NewAssessor(trustedTokens, trustedDevs []string) *Assessor {
	a := &Assessor{
		trustedTokens: make(map[string]struct{}, len(trustedTokens)),
		trustedDevs:   make(map[string]struct{}, len(trustedDevs)),
	}
	for _, id := range trustedTokens {
		a.trustedTokens[strings.TrimSpace(id)] = struct{}{}
	}
	for _, id := range trustedDevs {
		a.trustedDevs[strings.TrimSpace(id)] = struct{}{}
	}
	return a
}

var defaultAssessor = NewAssessor(TrustedTokens, TrustedDevelopers)

// Assess evaluates a token with the default allowlists.
func Assess(token store.Token, holders []store.Holder, ctx Context) Assessment {
	return defaultAssessor.Assess(token, holders, ctx)
}

// IsTrustedToken reports whether id is on the platform-token allowlist.
func (a *Assessor) IsTrustedToken(id string) bool {
	_, ok := a.trustedTokens[id]
	return ok
}

// IsTrustedDeveloper reports whether creator is on the developer allowlist.
func (a *Assessor) IsTrustedDeveloper(creator string) bool {
	_, ok := a.trustedDevs[creator]
	return ok
}

// Assess evaluates token and its holder list. Rules run in a fixed order and
// the first match wins. It never panics on missing or malformed data.
func (a *Assessor) Assess(token store.Token, holders []store.Holder, ctx Context) Assessment {
	if a.IsTrustedToken(token.ID) {
		return Assessment{Level: LevelLow, Message: MsgTrusted, Warning: WarnTrusted}
	}

	if token.HolderCount == store.HolderCountUnknown {
		if len(holders) == 0 {
			return Assessment{Level: LevelPending, Message: MsgPending, Warning: WarnPending}
		}
		token.HolderCount = effectiveHolderCount(token, holders)
	}

	if token.HolderCount <= 0 || effectiveHolderCount(token, holders) == 0 {
		return Assessment{Level: LevelRugged, Message: MsgRugged, Warning: WarnRugged}
	}

	// Negative and NaN pool sizes count as missing liquidity.
	if liq := token.Liquidity; liq != nil && (!(liq.BTC > 0) || !(liq.Token > 0)) {
		return Assessment{Level: LevelExtreme, Message: MsgNoLiquidity, Warning: WarnNoLiquidity}
	}

	legacy := len(holders) == 0 && token.CreatorBalance != nil
	if len(holders) == 0 && !legacy {
		return Assessment{Level: LevelPending, Message: MsgPending, Warning: WarnPending}
	}

	supply, ok := parseAmount(token.TotalSupply)
	if !ok || !supply.IsPositive() {
		return Assessment{Level: LevelPending, Message: MsgBadSupply, Warning: WarnPending}
	}

	var devBalance decimal.Decimal
	if legacy {
		devBalance, _ = parseAmount(*token.CreatorBalance)
	} else if h, found := findHolder(holders, token.Creator); found {
		devBalance, _ = parseAmount(h.Balance)
	}

	var stats Stats
	if legacy {
		stats = Stats{DevPercentage: percentOf(devBalance, supply)}
	} else {
		stats = concentration(holders, devBalance, supply)
	}

	if dangers := a.dangers(token, devBalance, ctx); len(dangers) > 0 {
		return Assessment{
			Level:   LevelExtreme,
			Message: MsgAbandonment,
			Warning: "DANGER: " + strings.Join(dangers, " & "),
			Stats:   &stats,
			Dangers: dangers,
		}
	}

	if legacy {
		return legacyAssessment(token, stats)
	}

	level := ClassifyConcentration(stats)
	return Assessment{
		Level:   level,
		Message: levelMessages[level],
		Warning: FormatHolderStats(stats),
		Stats:   &stats,
	}
}

// dangers collects the abandonment signals that short-circuit the ladder.
func (a *Assessor) dangers(token store.Token, devBalance decimal.Decimal, ctx Context) []string {
	var out []string

	if !devBalance.IsPositive() {
		out = append(out, DangerDevSold)
	}

	if !a.IsTrustedDeveloper(token.Creator) {
		if ctx.CreatorTokenCount > 1 {
			out = append(out, fmt.Sprintf("Developer has created %d tokens", ctx.CreatorTokenCount))
		}
		if len(out) > 0 && ctx.DevTrading != nil && ctx.DevTrading.DumpAndRebuy {
			out = append(out, ctx.DevTrading.Describe())
		}
	}

	return out
}

// ClassifyConcentration maps holder percentages onto the graded ladder. The
// dev and top-5 conditions of each tier are OR'ed.
func ClassifyConcentration(s Stats) Level {
	switch {
	case s.DevPercentage >= 50 || s.Top5Percentage >= 70:
		return LevelExtreme
	case s.DevPercentage >= 30 || s.Top5Percentage >= 50:
		return LevelVeryHigh
	case s.DevPercentage >= 20 || s.Top5Percentage >= 40:
		return LevelHigh
	case s.DevPercentage >= 10 || s.Top5Percentage >= 30:
		return LevelModerate
	case s.DevPercentage >= 5 || s.Top5Percentage >= 20:
		return LevelElevated
	case s.DevPercentage >= 2:
		return LevelGuarded
	default:
		return LevelLow
	}
}

// FormatHolderStats renders the "Dev: X% | Top 5: Y% | Top 10: Z%" line.
func FormatHolderStats(s Stats) string {
	return fmt.Sprintf("Dev: %.2f%% | Top 5: %.2f%% | Top 10: %.2f%%",
		s.DevPercentage, s.Top5Percentage, s.Top10Percentage)
}

// legacyAssessment grades a token known only by its creator balance and
// reported holder count.
func legacyAssessment(token store.Token, stats Stats) Assessment {
	level := ClassifyConcentration(stats)
	if token.HolderCount < minLegacyHolders && level.Severity() < LevelVeryHigh.Severity() {
		return Assessment{
			Level:   LevelVeryHigh,
			Message: MsgFewHolders,
			Warning: WarnFewHolders,
			Stats:   &stats,
		}
	}
	return Assessment{
		Level:   level,
		Message: levelMessages[level],
		Warning: fmt.Sprintf("Dev: %.2f%%", stats.DevPercentage),
		Stats:   &stats,
	}
}

// effectiveHolderCount prefers the count of positive balances in the list and
// falls back to the reported count when no list was supplied.
func effectiveHolderCount(token store.Token, holders []store.Holder) int {
	if len(holders) == 0 {
		return token.HolderCount
	}
	n := 0
	for _, h := range holders {
		if b, ok := parseAmount(h.Balance); ok && b.IsPositive() {
			n++
		}
	}
	return n
}

// ActiveHolders returns the holders with a positive, parseable balance.
func ActiveHolders(holders []store.Holder) []store.Holder {
	out := make([]store.Holder, 0, len(holders))
	for _, h := range holders {
		if b, ok := parseAmount(h.Balance); ok && b.IsPositive() {
			out = append(out, h)
		}
	}
	return out
}

// concentration computes dev, top-5 and top-10 shares of supply.
func concentration(holders []store.Holder, devBalance, supply decimal.Decimal) Stats {
	balances := make([]decimal.Decimal, len(holders))
	for i, h := range holders {
		b, ok := parseAmount(h.Balance)
		if !ok || b.IsNegative() {
			b = decimal.Zero
		}
		balances[i] = b
	}

	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].GreaterThan(balances[j])
	})

	return Stats{
		DevPercentage:   percentOf(devBalance, supply),
		Top5Percentage:  percentOf(sumTop(balances, 5), supply),
		Top10Percentage: percentOf(sumTop(balances, 10), supply),
	}
}

func sumTop(sorted []decimal.Decimal, n int) decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i < n && i < len(sorted); i++ {
		sum = sum.Add(sorted[i])
	}
	return sum
}

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole*100. whole must be positive.
func percentOf(part, whole decimal.Decimal) float64 {
	if !part.IsPositive() {
		return 0
	}
	return part.Mul(hundred).Div(whole).InexactFloat64()
}

func findHolder(holders []store.Holder, user string) (store.Holder, bool) {
	if user == "" {
		return store.Holder{}, false
	}
	for _, h := range holders {
		if h.User == user {
			return h, true
		}
	}
	return store.Holder{}, false
}

// parseAmount parses a raw balance or supply string.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
