package ui

import (
	"fmt"
	"strings"

	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/risk"
	"github.com/rivo/tview"
)

// TokenDetailView shows the full assessment of the selected token.
type TokenDetailView struct {
	textView *tview.TextView
}

// NewTokenDetailView creates a new token detail view.
func NewTokenDetailView() *TokenDetailView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)

	textView.SetTitle(" Token Detail ").SetBorder(true)

	return &TokenDetailView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *TokenDetailView) Widget() tview.Primitive {
	return v.textView
}

// Update renders r, or a placeholder when nothing is selected.
func (v *TokenDetailView) Update(r *pipeline.Report) {
	v.textView.Clear()
	if r == nil {
		fmt.Fprint(v.textView, "Select a token to see its assessment")
		v.textView.SetTitle(" Token Detail ")
		return
	}

	fmt.Fprint(v.textView, formatDetail(*r))
	v.textView.SetTitle(fmt.Sprintf(" %s ", tview.Escape(truncate(displayName(*r), 30))))
	v.textView.ScrollToBeginning()
}

func displayName(r pipeline.Report) string {
	if r.Token.Ticker != "" {
		return fmt.Sprintf("%s (%s)", r.Token.Name, r.Token.Ticker)
	}
	if r.Token.Name != "" {
		return r.Token.Name
	}
	return r.Token.ID
}

// formatDetail builds the detail text with tview color tags.
func formatDetail(r pipeline.Report) string {
	var b strings.Builder
	a := r.Assessment

	fmt.Fprintf(&b, "[yellow]Token[-]\n")
	fmt.Fprintf(&b, "ID: %s\n", tview.Escape(r.Token.ID))
	fmt.Fprintf(&b, "Creator: %s\n", truncateAddress(r.Token.Creator))
	fmt.Fprintf(&b, "Holders: %d (%d active)\n", r.Token.HolderCount, r.ActiveHolders)
	if liq := r.Token.Liquidity; liq != nil {
		fmt.Fprintf(&b, "Liquidity: %.0f BTC / %.0f tokens\n", liq.BTC, liq.Token)
	}

	b.WriteString("\n[yellow]Risk[-]\n")
	if a.Level == risk.LevelPending {
		fmt.Fprintf(&b, "[gray]%s[-]\n", tview.Escape(a.Warning))
		fmt.Fprintf(&b, "[gray]%s[-]\n", tview.Escape(a.Message))
	} else {
		fmt.Fprintf(&b, "[%s::b]%s[-::-]\n", a.Level.Color(), a.Level)
		fmt.Fprintf(&b, "%s\n", tview.Escape(a.Message))
		fmt.Fprintf(&b, "%s\n", tview.Escape(a.Warning))
	}

	if s := a.Stats; s != nil {
		fmt.Fprintf(&b, "Dev: %.2f%%  Top 5: %.2f%%  Top 10: %.2f%%\n",
			s.DevPercentage, s.Top5Percentage, s.Top10Percentage)
	}

	if len(a.Dangers) > 0 {
		b.WriteString("\n[red]Dangers[-]\n")
		for _, d := range a.Dangers {
			fmt.Fprintf(&b, "[red]-[-] %s\n", tview.Escape(d))
		}
	}

	b.WriteString("\n[yellow]Activity (24h)[-]\n")
	vol := r.Volume
	fmt.Fprintf(&b, "Volume: %.6f BTC (%d trades)\n", vol.Volume24h, vol.TradeCount24h)
	fmt.Fprintf(&b, "Spike: %.2fx  Change: %+.1f%%  Buy/Sell: %.2f\n",
		vol.SpikeRatio, vol.VolumeChange, vol.BuySellRatio)

	g := r.Growth
	if g.Previous > 0 {
		fmt.Fprintf(&b, "Holders: %d -> %d (%+d, %+.1f%%)  Retention: %.1f%%\n",
			g.Previous, g.Current, g.NewHolders, g.GrowthRate, g.RetentionRate)
	} else {
		fmt.Fprintf(&b, "Holders: %d (no history yet)\n", g.Current)
	}

	if dt := r.DevTrading; dt != nil {
		b.WriteString("\n[yellow]Developer Trading[-]\n")
		fmt.Fprintf(&b, "Sells: %d  Buys: %d  Sold: %.2f%%\n", dt.SellCount, dt.BuyCount, dt.PercentageSold)
		if dt.DumpAndRebuy {
			b.WriteString("[orange]Dump and re-buy pattern[-]\n")
		}
	}

	fmt.Fprintf(&b, "\n[gray]Updated %s[-]", formatTimeAgo(r.UpdatedAt))
	return b.String()
}

// truncateAddress truncates a principal or wallet id for display.
func truncateAddress(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
