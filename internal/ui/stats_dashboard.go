package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/odinsmash/engine/internal/metrics"
	"github.com/odinsmash/engine/internal/risk"
	"github.com/rivo/tview"
)

// distributionLevels is the row order of the risk distribution panel.
var distributionLevels = []risk.Level{
	risk.LevelLow,
	risk.LevelGuarded,
	risk.LevelElevated,
	risk.LevelModerate,
	risk.LevelHigh,
	risk.LevelVeryHigh,
	risk.LevelExtreme,
	risk.LevelRugged,
	risk.LevelPending,
}

// StatsDashboardView displays engine health and the risk distribution.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.MetricsSnapshot) {
	v.textView.Clear()
	fmt.Fprint(v.textView, formatStats(snapshot))
}

func formatStats(snapshot metrics.MetricsSnapshot) string {
	pollColor := "red"
	switch snapshot.PollStatus {
	case "ok":
		pollColor = "green"
	case "starting":
		pollColor = "yellow"
	}

	bufferPct := 0.0
	if snapshot.ChannelBufferCap > 0 {
		bufferPct = (float64(snapshot.ChannelBufferUsed) / float64(snapshot.ChannelBufferCap)) * 100
	}

	hitRate := 0.0
	if total := snapshot.CacheHits + snapshot.CacheMisses; total > 0 {
		hitRate = float64(snapshot.CacheHits) / float64(total) * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, `[yellow]System Status[-]
Uptime: %s
Poller: [%s]%s[-] (%s, %d tokens)

[yellow]Evaluations[-]
Total: %d
Rate: %.2f tokens/sec
Errors: %d
`,
		formatDuration(snapshot.Uptime),
		pollColor, snapshot.PollStatus,
		formatTimeAgo(snapshot.LastPoll), snapshot.LastPollCount,
		snapshot.EvaluationsTotal,
		snapshot.EvaluationRate,
		snapshot.FetchErrors,
	)

	b.WriteString("\n[yellow]Risk Distribution[-]\n")
	for _, l := range distributionLevels {
		label, _ := levelLabel(l)
		color := l.Color()
		fmt.Fprintf(&b, "[%s]%-14s[-] %d\n", color, label, snapshot.LevelCounts[l])
	}

	fmt.Fprintf(&b, `
[yellow]Performance[-]
Job Buffer: %d/%d (%.1f%%)
Cache: %d hits / %d misses (%.1f%%)
`,
		snapshot.ChannelBufferUsed, snapshot.ChannelBufferCap, bufferPct,
		snapshot.CacheHits, snapshot.CacheMisses, hitRate,
	)

	return b.String()
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 48*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
