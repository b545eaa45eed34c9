package ui

import (
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/store"
	"github.com/rivo/tview"
	"github.com/shopspring/decimal"
)

var topHoldersHeaders = []string{"#", "Holder", "Balance", "Share"}

// TopHoldersView lists the largest holders of the selected token.
type TopHoldersView struct {
	table   *tview.Table
	maxRows int
}

// NewTopHoldersView creates a new top holders view.
func NewTopHoldersView() *TopHoldersView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Holders ").SetBorder(true)

	v := &TopHoldersView{
		table:   table,
		maxRows: 10,
	}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *TopHoldersView) Widget() tview.Primitive {
	return v.table
}

func (v *TopHoldersView) setHeader() {
	for col, header := range topHoldersHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}

// holderRow is a holder with its parsed balance and share of supply.
type holderRow struct {
	holder  store.Holder
	balance decimal.Decimal
	share   float64
	isDev   bool
}

// Update redraws the table for r. A nil report clears it.
func (v *TopHoldersView) Update(r *pipeline.Report) {
	v.table.Clear()
	v.setHeader()

	if r == nil {
		v.table.SetTitle(" Top Holders ")
		return
	}

	rows := rankHolders(*r, v.maxRows)
	if len(rows) == 0 {
		cell := tview.NewTableCell("No holder data yet...").
			SetAlign(tview.AlignCenter).
			SetTextColor(tcell.ColorGray).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
	}

	for i, hr := range rows {
		row := i + 1

		name := hr.holder.Username
		if name == "" {
			name = truncateAddress(hr.holder.User)
		}
		color := tcell.ColorWhite
		if hr.isDev {
			name += " (dev)"
			color = tcell.ColorYellow
		}

		v.table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", row)))
		v.table.SetCell(row, 1, tview.NewTableCell(tview.Escape(name)).SetTextColor(color).SetExpansion(1))
		v.table.SetCell(row, 2, tview.NewTableCell(hr.balance.String()).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.2f%%", hr.share)).SetAlign(tview.AlignRight))
	}

	v.table.SetTitle(fmt.Sprintf(" Top Holders (%d of %d) ", len(rows), r.ActiveHolders))
}

// rankHolders returns up to n holders with positive balances, largest first.
// Shares are 0 when the supply is unknown.
func rankHolders(r pipeline.Report, n int) []holderRow {
	supply, err := decimal.NewFromString(r.Token.TotalSupply)
	if err != nil {
		supply = decimal.Zero
	}

	rows := make([]holderRow, 0, len(r.Holders))
	for _, h := range r.Holders {
		b, err := decimal.NewFromString(h.Balance)
		if err != nil || !b.IsPositive() {
			continue
		}
		hr := holderRow{holder: h, balance: b, isDev: h.User == r.Token.Creator}
		if supply.IsPositive() {
			hr.share = b.Mul(decimal.NewFromInt(100)).Div(supply).InexactFloat64()
		}
		rows = append(rows, hr)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].balance.GreaterThan(rows[j].balance)
	})

	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
