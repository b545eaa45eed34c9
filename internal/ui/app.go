// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/odinsmash/engine/internal/metrics"
	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/risk"
	"github.com/rivo/tview"
)

// filterCycle is the order the f key steps through. The empty level shows all.
var filterCycle = []risk.Level{
	"",
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

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex
	footer *tview.TextView

	// Views
	tokenList      *TokenListView
	tokenDetail    *TokenDetailView
	topHolders     *TopHoldersView
	volumeSpikes   *VolumeSpikesView
	statsDashboard *StatsDashboardView

	metricsTracker *metrics.MetricsTracker
	refreshRate    time.Duration
	onRefresh      func()

	// State below is only touched from the tview event goroutine.
	filterIdx int
	sortIdx   int
	reports   map[string]pipeline.Report

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates a new TUI application. onRefresh, if set, is called when
// the user presses r and should trigger an immediate poll.
func NewApp(tracker *metrics.MetricsTracker, refreshRate time.Duration, onRefresh func()) *App {
	ctx, cancel := context.WithCancel(context.Background())

	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}

	app := &App{
		app:            tview.NewApplication(),
		metricsTracker: tracker,
		refreshRate:    refreshRate,
		onRefresh:      onRefresh,
		reports:        make(map[string]pipeline.Report),
		ctx:            ctx,
		cancel:         cancel,
	}

	// Initialize views
	app.tokenList = NewTokenListView()
	app.tokenDetail = NewTokenDetailView()
	app.topHolders = NewTopHoldersView()
	app.volumeSpikes = NewVolumeSpikesView()
	app.statsDashboard = NewStatsDashboardView()
	app.footer = tview.NewTextView().SetDynamicColors(true)

	app.tokenList.OnSelect(app.showToken)

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the panel layout.
func (a *App) setupLayout() {
	// Top row: Token list (left) | Token detail (right)
	topRow := tview.NewFlex().
		AddItem(a.tokenList.Widget(), 0, 3, true).
		AddItem(a.tokenDetail.Widget(), 0, 2, false)

	// Bottom row: Top holders | Volume spikes | Stats dashboard
	bottomRow := tview.NewFlex().
		AddItem(a.topHolders.Widget(), 0, 1, false).
		AddItem(a.volumeSpikes.Widget(), 0, 1, false).
		AddItem(a.statsDashboard.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 3, true).
		AddItem(bottomRow, 0, 2, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetRoot(a.layout, true).SetFocus(a.tokenList.Widget())
	a.updateFooter()
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				if a.onRefresh != nil {
					a.onRefresh()
				}
				a.refresh()
				return nil
			case 'f', 'F':
				a.filterIdx = nextIndex(a.filterIdx, len(filterCycle))
				a.render(a.metricsTracker.Reports(), a.metricsTracker.Snapshot())
				return nil
			case 's', 'S':
				a.sortIdx = nextIndex(a.sortIdx, len(pipeline.SortOptions))
				a.render(a.metricsTracker.Reports(), a.metricsTracker.Snapshot())
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// updateLoop periodically refreshes views with tracker data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// refresh queues a redraw of every view.
func (a *App) refresh() {
	reports := a.metricsTracker.Reports()
	snapshot := a.metricsTracker.Snapshot()

	a.app.QueueUpdateDraw(func() {
		a.render(reports, snapshot)
	})
}

// render redraws all views. Must run on the tview event goroutine.
func (a *App) render(reports []pipeline.Report, snapshot metrics.MetricsSnapshot) {
	a.reports = make(map[string]pipeline.Report, len(reports))
	for _, r := range reports {
		a.reports[r.Token.ID] = r
	}

	filter := filterCycle[a.filterIdx]
	sortOpt := pipeline.SortOptions[a.sortIdx]

	visible := pipeline.Filter(reports, filter)
	pipeline.Sort(visible, sortOpt)

	a.tokenList.Update(visible, filter, sortOpt, len(reports))
	a.showToken(a.tokenList.Selected())
	a.volumeSpikes.Update(snapshot)
	a.statsDashboard.Update(snapshot)
	a.updateFooter()
}

// showToken fills the detail and holder panels for tokenID.
func (a *App) showToken(tokenID string) {
	r, ok := a.reports[tokenID]
	if !ok {
		a.tokenDetail.Update(nil)
		a.topHolders.Update(nil)
		return
	}
	a.tokenDetail.Update(&r)
	a.topHolders.Update(&r)
}

func (a *App) updateFooter() {
	filterName := "all"
	if l := filterCycle[a.filterIdx]; l != "" {
		filterName = l.FilterKey()
	}
	a.footer.SetText(fmt.Sprintf(
		" [yellow]f[-] filter: %s  [yellow]s[-] sort: %s  [yellow]r[-] refresh  [yellow]q[-] quit  [yellow]up/down[-] select",
		filterName, pipeline.SortOptions[a.sortIdx]))
}

// nextIndex steps i forward through a cycle of length n.
func nextIndex(i, n int) int {
	if n == 0 {
		return 0
	}
	return (i + 1) % n
}
