package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/risk"
	"github.com/rivo/tview"
)

var tokenListHeaders = []string{"Token", "Ticker", "Risk", "Holders", "Price", "MCap", "Age"}

// TokenListView is the main token table: one row per evaluated token.
type TokenListView struct {
	table *tview.Table
}

// NewTokenListView creates a new token list view.
func NewTokenListView() *TokenListView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)

	table.SetTitle(" Tokens ").SetBorder(true)

	v := &TokenListView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *TokenListView) Widget() tview.Primitive {
	return v.table
}

// OnSelect registers a callback fired with the token id of the selected row.
func (v *TokenListView) OnSelect(fn func(tokenID string)) {
	v.table.SetSelectionChangedFunc(func(row, _ int) {
		if id := v.idAt(row); id != "" {
			fn(id)
		}
	})
}

// Selected returns the token id of the highlighted row, or "".
func (v *TokenListView) Selected() string {
	row, _ := v.table.GetSelection()
	return v.idAt(row)
}

func (v *TokenListView) idAt(row int) string {
	if row < 1 {
		return ""
	}
	cell := v.table.GetCell(row, 0)
	if cell == nil {
		return ""
	}
	id, _ := cell.GetReference().(string)
	return id
}

func (v *TokenListView) setHeader() {
	for col, header := range tokenListHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(0, col, cell)
	}
}

// Update redraws the table from reports, already filtered and sorted. The
// highlighted token stays selected when it is still listed.
func (v *TokenListView) Update(reports []pipeline.Report, filter risk.Level, sortOpt pipeline.SortOption, total int) {
	selected := v.Selected()

	v.table.Clear()
	v.setHeader()

	if len(reports) == 0 {
		cell := tview.NewTableCell("No tokens yet...").
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
	}

	selectRow := 1
	for i, r := range reports {
		row := i + 1
		if r.Token.ID == selected {
			selectRow = row
		}

		name := r.Token.Name
		if name == "" {
			name = r.Token.ID
		}

		nameCell := tview.NewTableCell(tview.Escape(truncate(name, 24))).
			SetReference(r.Token.ID).
			SetExpansion(1)
		v.table.SetCell(row, 0, nameCell)

		v.table.SetCell(row, 1, tview.NewTableCell(tview.Escape(r.Token.Ticker)))

		label, color := levelLabel(r.Assessment.Level)
		v.table.SetCell(row, 2, tview.NewTableCell(label).SetTextColor(color))

		cells := []string{
			fmt.Sprintf("%d", r.Token.HolderCount),
			fmt.Sprintf("%.4f", r.Token.Price),
			fmt.Sprintf("%.0f", r.Token.MarketCap),
			formatAge(r.Token.CreatedAt),
		}
		for j, text := range cells {
			v.table.SetCell(row, 3+j, tview.NewTableCell(text).SetAlign(tview.AlignRight))
		}
	}

	if len(reports) > 0 {
		v.table.Select(selectRow, 0)
	}

	filterName := "all"
	if filter != "" {
		filterName = filter.FilterKey()
	}
	v.table.SetTitle(fmt.Sprintf(" Tokens (%d/%d) | risk: %s | sort: %s ",
		len(reports), total, filterName, sortOpt))
}

// levelLabel returns the table text and color of a level. PENDING renders
// as a neutral loading state rather than a risk badge.
func levelLabel(l risk.Level) (string, tcell.Color) {
	if l == risk.LevelPending || l == "" {
		return "loading...", tcell.ColorGray
	}
	return string(l), tcell.GetColor(l.Color())
}

// formatAge formats how long ago a token was created.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	return formatDuration(time.Since(t))
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
