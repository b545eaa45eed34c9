package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/odinsmash/engine/internal/metrics"
	"github.com/rivo/tview"
)

var volumeSpikesHeaders = []string{"Token", "Risk", "Spike", "Vol 24h", "B/S"}

// VolumeSpikesView displays tokens trading well above their daily baseline.
type VolumeSpikesView struct {
	table *tview.Table
}

// NewVolumeSpikesView creates a new volume spikes view.
func NewVolumeSpikesView() *VolumeSpikesView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Volume Spikes ").SetBorder(true)

	v := &VolumeSpikesView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *VolumeSpikesView) Widget() tview.Primitive {
	return v.table
}

func (v *VolumeSpikesView) setHeader() {
	for col, header := range volumeSpikesHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}

// Update refreshes the spike list. Spikes arrive sorted, largest first.
func (v *VolumeSpikesView) Update(snapshot metrics.MetricsSnapshot) {
	v.table.Clear()
	v.setHeader()

	spikes := snapshot.VolumeSpikes
	limit := 10
	if len(spikes) < limit {
		limit = len(spikes)
	}

	if limit == 0 {
		// No data yet
		cell := tview.NewTableCell("No spikes...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, s := range spikes[:limit] {
		row := i + 1

		name := s.Ticker
		if name == "" {
			name = s.Name
		}
		if name == "" {
			name = s.TokenID
		}
		v.table.SetCell(row, 0, tview.NewTableCell(tview.Escape(truncate(name, 16))).SetExpansion(1))

		label, color := levelLabel(s.Level)
		v.table.SetCell(row, 1, tview.NewTableCell(label).SetTextColor(color))

		spikeColor := tcell.ColorWhite
		switch {
		case s.SpikeRatio >= 5:
			spikeColor = tcell.ColorRed
		case s.SpikeRatio >= 2:
			spikeColor = tcell.ColorYellow
		}
		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%.1fx", s.SpikeRatio)).
			SetAlign(tview.AlignRight).
			SetTextColor(spikeColor))

		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.5f", s.Volume24h)).
			SetAlign(tview.AlignRight))

		bsColor := tcell.ColorGreen
		if s.BuySellRatio < 1 {
			bsColor = tcell.ColorRed
		}
		v.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.2f", s.BuySellRatio)).
			SetAlign(tview.AlignRight).
			SetTextColor(bsColor))
	}

	v.table.SetTitle(fmt.Sprintf(" Volume Spikes (%d) ", len(spikes)))
}
