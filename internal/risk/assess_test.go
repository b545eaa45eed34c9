package risk

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/odinsmash/engine/internal/store"
)

func liquid() *store.Liquidity {
	return &store.Liquidity{BTC: 10, Token: 10}
}

// scenarioA is a 1,000,000 supply token where dev1 holds 60% and 49 small
// holders share the rest.
func scenarioA() (store.Token, []store.Holder) {
	token := store.Token{
		ID:          "xyz",
		Creator:     "dev1",
		TotalSupply: "1000000",
		HolderCount: 50,
		Liquidity:   liquid(),
	}
	holders := []store.Holder{{User: "dev1", Balance: "600000"}}
	for i := 0; i < 48; i++ {
		holders = append(holders, store.Holder{User: "h" + strconv.Itoa(i), Balance: "8163"})
	}
	holders = append(holders, store.Holder{User: "h48", Balance: "8176"})
	return token, holders
}

func TestScenarioA(t *testing.T) {
	token, holders := scenarioA()
	got := Assess(token, holders, Context{})

	if got.Level != LevelExtreme {
		t.Fatalf("Expected %s, got %s (%s)", LevelExtreme, got.Level, got.Warning)
	}
	if got.Stats == nil {
		t.Fatal("Expected stats to be present")
	}
	if math.Abs(got.Stats.DevPercentage-60) > 1e-9 {
		t.Errorf("Expected dev percentage 60, got %f", got.Stats.DevPercentage)
	}
	if got.Message != levelMessages[LevelExtreme] {
		t.Errorf("Expected ladder message, got %q", got.Message)
	}
	if !strings.HasPrefix(got.Warning, "Dev: 60.00% | Top 5: ") {
		t.Errorf("Unexpected warning %q", got.Warning)
	}
}

func TestScenarioB(t *testing.T) {
	token, _ := scenarioA()
	token.HolderCount = 0

	got := Assess(token, nil, Context{})
	if got.Level != LevelRugged {
		t.Errorf("Expected %s, got %s", LevelRugged, got.Level)
	}
	if got.Message != MsgRugged || got.Warning != WarnRugged {
		t.Errorf("Unexpected rugged texts: %q / %q", got.Message, got.Warning)
	}
	if got.Stats != nil {
		t.Errorf("Expected no stats for rugged token, got %+v", got.Stats)
	}
}

func TestScenarioC(t *testing.T) {
	if got := ClassifyConcentration(Stats{DevPercentage: 8, Top5Percentage: 25}); got != LevelElevated {
		t.Errorf("Expected %s, got %s", LevelElevated, got)
	}

	token := store.Token{ID: "c", Creator: "dev", TotalSupply: "1000", HolderCount: 15, Liquidity: liquid()}
	holders := []store.Holder{
		{User: "dev", Balance: "80"},
		{User: "a", Balance: "60"},
		{User: "b", Balance: "50"},
		{User: "c", Balance: "40"},
		{User: "d", Balance: "20"},
	}
	for i := 0; i < 10; i++ {
		holders = append(holders, store.Holder{User: "s" + strconv.Itoa(i), Balance: "10"})
	}

	got := Assess(token, holders, Context{})
	if got.Level != LevelElevated {
		t.Errorf("Expected %s, got %s (%s)", LevelElevated, got.Level, got.Warning)
	}
	want := "Dev: 8.00% | Top 5: 25.00% | Top 10: 30.00%"
	if got.Warning != want {
		t.Errorf("Expected warning %q, got %q", want, got.Warning)
	}
}

func TestTrustedTokenOverride(t *testing.T) {
	cases := []struct {
		name    string
		token   store.Token
		holders []store.Holder
		ctx     Context
	}{
		{"zero holders", store.Token{ID: PlatformToken}, nil, Context{}},
		{"no liquidity", store.Token{ID: PlatformToken, HolderCount: 5, Liquidity: &store.Liquidity{}}, nil, Context{}},
		{"whale dev", store.Token{ID: PlatformToken, Creator: "d", TotalSupply: "100", HolderCount: 1},
			[]store.Holder{{User: "d", Balance: "100"}}, Context{CreatorTokenCount: 40}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Assess(tc.token, tc.holders, tc.ctx)
			if got.Level != LevelLow || got.Message != MsgTrusted || got.Warning != WarnTrusted {
				t.Errorf("Expected trusted LOW RISK, got %+v", got)
			}
		})
	}
}

func TestCustomAllowlists(t *testing.T) {
	a := NewAssessor([]string{"mytoken"}, []string{"alice"})
	got := a.Assess(store.Token{ID: "mytoken"}, nil, Context{})
	if got.Level != LevelLow {
		t.Errorf("Expected custom trusted token to be LOW RISK, got %s", got.Level)
	}
	if a.IsTrustedToken(PlatformToken) {
		t.Error("Expected default platform token to be absent from custom allowlist")
	}
}

func TestZeroEffectiveHolders(t *testing.T) {
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 12, Liquidity: liquid()}
	holders := []store.Holder{
		{User: "dev", Balance: "0"},
		{User: "a", Balance: "0"},
		{User: "b", Balance: "junk"},
	}

	got := Assess(token, holders, Context{})
	if got.Level != LevelRugged {
		t.Errorf("Expected %s, got %s", LevelRugged, got.Level)
	}
}

func TestRuggedPrecedesLiquidity(t *testing.T) {
	token := store.Token{ID: "t", HolderCount: 0, Liquidity: &store.Liquidity{}}
	if got := Assess(token, nil, Context{}); got.Level != LevelRugged {
		t.Errorf("Expected %s, got %s", LevelRugged, got.Level)
	}
}

func TestNoLiquidity(t *testing.T) {
	token, holders := scenarioA()
	token.Liquidity = &store.Liquidity{BTC: 5, Token: 0}

	got := Assess(token, holders, Context{})
	if got.Level != LevelExtreme || got.Message != MsgNoLiquidity || got.Warning != WarnNoLiquidity {
		t.Errorf("Expected no-liquidity EXTREME RISK, got %+v", got)
	}

	// untracked liquidity skips the rule
	token.Liquidity = nil
	got = Assess(token, holders, Context{})
	if got.Message == MsgNoLiquidity {
		t.Error("Expected nil liquidity to skip the no-liquidity rule")
	}
}

func TestMalformedLiquidityIsNoLiquidity(t *testing.T) {
	cases := []store.Liquidity{
		{BTC: math.NaN(), Token: 1},
		{BTC: 1, Token: math.NaN()},
		{BTC: -3, Token: 10},
		{BTC: 10, Token: -1},
		{BTC: math.Inf(-1), Token: 10},
	}

	// three equal holders alone would grade as healthy
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 3}
	holders := []store.Holder{
		{User: "a", Balance: "1"},
		{User: "b", Balance: "1"},
		{User: "c", Balance: "1"},
	}

	for _, liq := range cases {
		token.Liquidity = &liq
		got := Assess(token, holders, Context{})
		if got.Level != LevelExtreme || got.Message != MsgNoLiquidity {
			t.Errorf("%+v: expected no-liquidity EXTREME RISK, got %s (%s)", liq, got.Level, got.Message)
		}
	}
}

func TestUnknownHolderCount(t *testing.T) {
	token, holders := scenarioA()
	want := Assess(token, holders, Context{})

	token.HolderCount = store.HolderCountUnknown
	got := Assess(token, holders, Context{})
	if got.Level != want.Level || got.Level == LevelRugged {
		t.Errorf("Expected unknown count to fall back to the list (%s), got %s", want.Level, got.Level)
	}

	if got := Assess(token, nil, Context{}); got.Level != LevelPending {
		t.Errorf("Expected PENDING without count or list, got %s", got.Level)
	}

	zero := []store.Holder{{User: "a", Balance: "0"}}
	if got := Assess(token, zero, Context{}); got.Level != LevelRugged {
		t.Errorf("Expected RUGGED when the list has no balances, got %s", got.Level)
	}
}

func TestPendingWhenHoldersMissing(t *testing.T) {
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 30}

	for _, holders := range [][]store.Holder{nil, {}} {
		got := Assess(token, holders, Context{})
		if got.Level != LevelPending {
			t.Errorf("Expected %s, got %s", LevelPending, got.Level)
		}
		if got.Level.Severity() != 0 {
			t.Errorf("Expected PENDING to sit outside the ladder")
		}
	}
}

func TestNoDivisionByZero(t *testing.T) {
	holders := []store.Holder{{User: "dev", Balance: "500"}, {User: "a", Balance: "NaN"}}

	for _, supply := range []string{"0", "", "abc", "-100", "Infinity"} {
		token := store.Token{ID: "t", Creator: "dev", TotalSupply: supply, HolderCount: 2}
		got := Assess(token, holders, Context{})
		if got.Level != LevelPending {
			t.Errorf("supply %q: expected %s, got %s", supply, LevelPending, got.Level)
		}
		if got.Stats != nil {
			t.Errorf("supply %q: expected no stats, got %+v", supply, got.Stats)
		}
		if strings.Contains(got.Warning, "NaN") || strings.Contains(got.Warning, "Inf") {
			t.Errorf("supply %q: warning leaked a non-finite value: %q", supply, got.Warning)
		}
	}
}

func TestMalformedBalancesStayFinite(t *testing.T) {
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 4}
	holders := []store.Holder{
		{User: "dev", Balance: "10"},
		{User: "a", Balance: "not-a-number"},
		{User: "b", Balance: ""},
		{User: "c", Balance: "-50"},
	}

	got := Assess(token, holders, Context{})
	if got.Stats == nil {
		t.Fatal("Expected stats")
	}
	for _, v := range []float64{got.Stats.DevPercentage, got.Stats.Top5Percentage, got.Stats.Top10Percentage} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("Expected finite stats, got %+v", got.Stats)
		}
	}
	if got.Stats.Top5Percentage != 1 {
		t.Errorf("Expected top 5 of 1%%, got %f", got.Stats.Top5Percentage)
	}
}

func TestDevSoldShortCircuits(t *testing.T) {
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 30, Liquidity: liquid()}
	holders := []store.Holder{{User: "dev", Balance: "0"}}
	for i := 0; i < 29; i++ {
		holders = append(holders, store.Holder{User: "h" + strconv.Itoa(i), Balance: "10"})
	}

	got := Assess(token, holders, Context{})
	if got.Level != LevelExtreme {
		t.Fatalf("Expected %s, got %s", LevelExtreme, got.Level)
	}
	if got.Message != MsgAbandonment {
		t.Errorf("Expected abandonment message, got %q", got.Message)
	}
	if got.Warning != "DANGER: "+DangerDevSold {
		t.Errorf("Unexpected warning %q", got.Warning)
	}
	if got.Stats == nil || got.Stats.Top5Percentage != 5 {
		t.Errorf("Expected stats with top 5 of 5%%, got %+v", got.Stats)
	}
}

func TestDevMissingFromList(t *testing.T) {
	token := store.Token{ID: "t", Creator: "ghost", TotalSupply: "1000", HolderCount: 2}
	holders := []store.Holder{{User: "a", Balance: "10"}, {User: "b", Balance: "10"}}

	got := Assess(token, holders, Context{})
	if got.Level != LevelExtreme || len(got.Dangers) != 1 || got.Dangers[0] != DangerDevSold {
		t.Errorf("Expected dev-sold EXTREME RISK, got %+v", got)
	}
}

func TestSerialCreator(t *testing.T) {
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 3}
	holders := []store.Holder{{User: "dev", Balance: "5"}, {User: "a", Balance: "5"}, {User: "b", Balance: "5"}}

	got := Assess(token, holders, Context{CreatorTokenCount: 4})
	if got.Level != LevelExtreme {
		t.Fatalf("Expected %s, got %s", LevelExtreme, got.Level)
	}
	if got.Warning != "DANGER: Developer has created 4 tokens" {
		t.Errorf("Unexpected warning %q", got.Warning)
	}

	// a single launch is not a serial creator
	got = Assess(token, holders, Context{CreatorTokenCount: 1})
	if got.Level == LevelExtreme {
		t.Errorf("Expected one token to pass the serial-creator check, got %+v", got)
	}
}

func TestCombinedDangers(t *testing.T) {
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 1}
	holders := []store.Holder{{User: "a", Balance: "5"}}
	dump := &DevTrading{SellCount: 4, BuyCount: 1, PercentageSold: 80, DumpAndRebuy: true}

	got := Assess(token, holders, Context{CreatorTokenCount: 3, DevTrading: dump})
	want := "DANGER: Developer has sold their entire position & Developer has created 3 tokens & " + dump.Describe()
	if got.Warning != want {
		t.Errorf("Expected warning %q, got %q", want, got.Warning)
	}
	if len(got.Dangers) != 3 {
		t.Errorf("Expected 3 dangers, got %v", got.Dangers)
	}
}

func TestDumpAloneDoesNotSetLevel(t *testing.T) {
	token, holders := scenarioA()
	holders[0].Balance = "1000" // dev holds 0.1%
	dump := &DevTrading{SellCount: 5, BuyCount: 2, PercentageSold: 90, DumpAndRebuy: true}

	withDump := Assess(token, holders, Context{DevTrading: dump})
	without := Assess(token, holders, Context{})
	if withDump.Level != without.Level {
		t.Errorf("Expected dump signal alone to leave level unchanged, got %s vs %s", withDump.Level, without.Level)
	}
}

func TestTrustedDeveloperSkipsSerialCheck(t *testing.T) {
	token := store.Token{ID: "t", Creator: TrustedDevelopers[0], TotalSupply: "1000", HolderCount: 2}
	holders := []store.Holder{{User: TrustedDevelopers[0], Balance: "5"}, {User: "a", Balance: "5"}}

	got := Assess(token, holders, Context{CreatorTokenCount: 12})
	if got.Level == LevelExtreme {
		t.Errorf("Expected trusted developer to skip the serial-creator check, got %+v", got)
	}
}

func TestLegacyCreatorBalance(t *testing.T) {
	balance := "30"
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 100, CreatorBalance: &balance}

	got := Assess(token, nil, Context{})
	if got.Level != LevelGuarded {
		t.Errorf("Expected %s, got %s", LevelGuarded, got.Level)
	}
	if got.Warning != "Dev: 3.00%" {
		t.Errorf("Expected dev-only warning, got %q", got.Warning)
	}
}

func TestLegacyLowHolderFloor(t *testing.T) {
	balance := "1"
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", CreatorBalance: &balance}

	for _, count := range []int{1, 4, 9} {
		token.HolderCount = count
		got := Assess(token, nil, Context{})
		if got.Level != LevelVeryHigh || got.Warning != WarnFewHolders {
			t.Errorf("holder count %d: expected floored VERY HIGH RISK, got %+v", count, got)
		}
	}

	// a worse percentage outranks the floor
	balance = "600"
	token.HolderCount = 3
	if got := Assess(token, nil, Context{}); got.Level != LevelExtreme {
		t.Errorf("Expected %s, got %s", LevelExtreme, got.Level)
	}
}

func TestLegacyCreatorSold(t *testing.T) {
	balance := "0"
	token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 50, CreatorBalance: &balance}
	if got := Assess(token, nil, Context{}); got.Level != LevelExtreme {
		t.Errorf("Expected %s, got %s", LevelExtreme, got.Level)
	}
}

func TestOrSemantics(t *testing.T) {
	if got := ClassifyConcentration(Stats{DevPercentage: 0, Top5Percentage: 75}); got != LevelExtreme {
		t.Errorf("Expected top 5 alone to trigger %s, got %s", LevelExtreme, got)
	}
	if got := ClassifyConcentration(Stats{DevPercentage: 60, Top5Percentage: 0}); got != LevelExtreme {
		t.Errorf("Expected dev alone to trigger %s, got %s", LevelExtreme, got)
	}
}

func TestLadderBoundaries(t *testing.T) {
	cases := []struct {
		dev, top5 float64
		want      Level
	}{
		{50, 0, LevelExtreme},
		{49.99, 69.99, LevelVeryHigh},
		{0, 50, LevelVeryHigh},
		{20, 0, LevelHigh},
		{0, 40, LevelHigh},
		{10, 0, LevelModerate},
		{0, 30, LevelModerate},
		{5, 0, LevelElevated},
		{0, 20, LevelElevated},
		{2, 19.99, LevelGuarded},
		{1.99, 19.99, LevelLow},
		{0, 0, LevelLow},
	}

	for _, tc := range cases {
		if got := ClassifyConcentration(Stats{DevPercentage: tc.dev, Top5Percentage: tc.top5}); got != tc.want {
			t.Errorf("dev=%v top5=%v: expected %s, got %s", tc.dev, tc.top5, tc.want, got)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	for top5 := 0.0; top5 <= 100; top5 += 2.5 {
		prev := 0
		for dev := 0.0; dev <= 100; dev += 0.5 {
			sev := ClassifyConcentration(Stats{DevPercentage: dev, Top5Percentage: top5}).Severity()
			if sev < prev {
				t.Fatalf("Severity dropped at dev=%v top5=%v", dev, top5)
			}
			prev = sev
		}
	}

	for dev := 0.0; dev <= 100; dev += 2.5 {
		prev := 0
		for top5 := 0.0; top5 <= 100; top5 += 0.5 {
			sev := ClassifyConcentration(Stats{DevPercentage: dev, Top5Percentage: top5}).Severity()
			if sev < prev {
				t.Fatalf("Severity dropped at dev=%v top5=%v", dev, top5)
			}
			prev = sev
		}
	}
}

func TestMonotonicInDevBalance(t *testing.T) {
	prev := 0
	for bal := 1; bal <= 900; bal += 7 {
		token := store.Token{ID: "t", Creator: "dev", TotalSupply: "1000", HolderCount: 6}
		holders := []store.Holder{
			{User: "dev", Balance: strconv.Itoa(bal)},
			{User: "a", Balance: "10"},
			{User: "b", Balance: "10"},
			{User: "c", Balance: "10"},
			{User: "d", Balance: "10"},
			{User: "e", Balance: "10"},
		}
		sev := Assess(token, holders, Context{}).Level.Severity()
		if sev < prev {
			t.Fatalf("Severity dropped at dev balance %d", bal)
		}
		prev = sev
	}
}

func TestIdempotent(t *testing.T) {
	token, holders := scenarioA()
	ctx := Context{CreatorTokenCount: 1}

	first, _ := json.Marshal(Assess(token, holders, ctx))
	second, _ := json.Marshal(Assess(token, holders, ctx))
	if string(first) != string(second) {
		t.Errorf("Expected identical output, got %s vs %s", first, second)
	}
}

func TestAssessDoesNotMutateHolders(t *testing.T) {
	token, holders := scenarioA()
	holders[0], holders[10] = holders[10], holders[0]
	before := holders[0]

	Assess(token, holders, Context{})
	if holders[0] != before {
		t.Error("Expected holder slice order to be preserved")
	}
}

func TestActiveHolders(t *testing.T) {
	holders := []store.Holder{
		{User: "a", Balance: "1"},
		{User: "b", Balance: "0"},
		{User: "c", Balance: "x"},
		{User: "d", Balance: "12345678901234567890"},
	}
	got := ActiveHolders(holders)
	if len(got) != 2 || got[0].User != "a" || got[1].User != "d" {
		t.Errorf("Expected [a d], got %v", got)
	}
}
