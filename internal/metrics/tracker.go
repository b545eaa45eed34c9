// Package metrics keeps the latest report per token and engine health counters.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/risk"
)

// rateWindow is the window over which the evaluation rate is measured.
const rateWindow = 60 * time.Second

// maxSpikes caps the volume-spike list in a snapshot.
const maxSpikes = 20

// SpikeStats is a token whose 24h volume is above its daily baseline.
type SpikeStats struct {
	TokenID      string
	Name         string
	Ticker       string
	Level        risk.Level
	SpikeRatio   float64
	Volume24h    float64
	BuySellRatio float64
	Price        float64
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	EvaluationsTotal  int64
	FetchErrors       int64
	LastError         string
	TokensTracked     int
	LevelCounts       map[risk.Level]int
	EvaluationRate    float64 // evaluations per second
	VolumeSpikes      []SpikeStats
	Uptime            time.Duration
	PollStatus        string
	LastPoll          time.Time
	LastPollCount     int
	ChannelBufferUsed int
	ChannelBufferCap  int
	CacheHits         int64
	CacheMisses       int64
}

// MetricsTracker provides thread-safe metrics tracking. It also serves as
// the report store read by the API and the UI.
type MetricsTracker struct {
	mu                sync.RWMutex
	reports           map[string]pipeline.Report
	evaluationsTotal  int64
	fetchErrors       int64
	lastError         string
	startTime         time.Time
	evalTimestamps    []time.Time
	pollStatus        string
	lastPoll          time.Time
	lastPollCount     int
	channelBufferUsed int
	channelBufferCap  int
	cacheHits         int64
	cacheMisses       int64

	now func() time.Time
}

// NewMetricsTracker creates a new MetricsTracker.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		reports:        make(map[string]pipeline.Report),
		startTime:      time.Now(),
		evalTimestamps: make([]time.Time, 0, 256),
		pollStatus:     "starting",
		now:            time.Now,
	}
}

// RecordReport stores the latest report of a token. A report older than
// the stored one still counts as an evaluation but does not replace it.
func (m *MetricsTracker) RecordReport(r pipeline.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evaluationsTotal++
	if prev, ok := m.reports[r.Token.ID]; !ok || !r.UpdatedAt.Before(prev.UpdatedAt) {
		m.reports[r.Token.ID] = r
	}
	m.evalTimestamps = append(m.evalTimestamps, now)
	m.evalTimestamps = pruneBefore(m.evalTimestamps, now.Add(-rateWindow))
}

// RecordError counts a failed evaluation.
func (m *MetricsTracker) RecordError(tokenID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrors++
	if err != nil {
		m.lastError = tokenID + ": " + err.Error()
	}
}

// SetPollStatus sets the token poller status shown in the UI.
func (m *MetricsTracker) SetPollStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollStatus = status
}

// SetLastPoll records the time and size of the last token listing.
func (m *MetricsTracker) SetLastPoll(t time.Time, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPoll = t
	m.lastPollCount = count
}

// SetChannelBuffer sets the job channel buffer usage.
func (m *MetricsTracker) SetChannelBuffer(used, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelBufferUsed = used
	m.channelBufferCap = capacity
}

// SetCacheStats sets the upstream cache counters.
func (m *MetricsTracker) SetCacheStats(hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits = hits
	m.cacheMisses = misses
}

// Report returns the latest report of a token.
func (m *MetricsTracker) Report(tokenID string) (pipeline.Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[tokenID]
	return r, ok
}

// Reports returns every stored report in no particular order.
func (m *MetricsTracker) Reports() []pipeline.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pipeline.Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	return out
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *MetricsTracker) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()

	// Evaluations per second over the rate window
	evalRate := 0.0
	recent := pruneBefore(append([]time.Time(nil), m.evalTimestamps...), now.Add(-rateWindow))
	if len(recent) > 0 {
		duration := now.Sub(recent[0]).Seconds()
		if duration < 1 {
			duration = 1
		}
		evalRate = float64(len(recent)) / duration
	}

	levels := make(map[risk.Level]int)
	for _, r := range m.reports {
		levels[r.Assessment.Level]++
	}

	return MetricsSnapshot{
		EvaluationsTotal:  m.evaluationsTotal,
		FetchErrors:       m.fetchErrors,
		LastError:         m.lastError,
		TokensTracked:     len(m.reports),
		LevelCounts:       levels,
		EvaluationRate:    evalRate,
		VolumeSpikes:      m.calculateVolumeSpikes(),
		Uptime:            now.Sub(m.startTime),
		PollStatus:        m.pollStatus,
		LastPoll:          m.lastPoll,
		LastPollCount:     m.lastPollCount,
		ChannelBufferUsed: m.channelBufferUsed,
		ChannelBufferCap:  m.channelBufferCap,
		CacheHits:         m.cacheHits,
		CacheMisses:       m.cacheMisses,
	}
}

// calculateVolumeSpikes lists tokens trading above their baseline, largest
// spike first. Must be called with lock held.
func (m *MetricsTracker) calculateVolumeSpikes() []SpikeStats {
	spikes := make([]SpikeStats, 0)

	for id, r := range m.reports {
		v := r.Volume
		if v.Volume24h <= 0 || v.SpikeRatio <= 1 {
			continue
		}
		spikes = append(spikes, SpikeStats{
			TokenID:      id,
			Name:         r.Token.Name,
			Ticker:       r.Token.Ticker,
			Level:        r.Assessment.Level,
			SpikeRatio:   v.SpikeRatio,
			Volume24h:    v.Volume24h,
			BuySellRatio: v.BuySellRatio,
			Price:        r.Token.Price,
		})
	}

	sort.Slice(spikes, func(i, j int) bool {
		if spikes[i].SpikeRatio != spikes[j].SpikeRatio {
			return spikes[i].SpikeRatio > spikes[j].SpikeRatio
		}
		return spikes[i].TokenID < spikes[j].TokenID
	})

	if len(spikes) > maxSpikes {
		spikes = spikes[:maxSpikes]
	}
	return spikes
}

// Cleanup drops reports not refreshed within maxAge and returns how many
// were removed. Tokens that fall off the listing stop being refreshed.
func (m *MetricsTracker) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, r := range m.reports {
		if r.UpdatedAt.Before(cutoff) {
			delete(m.reports, id)
			removed++
		}
	}
	return removed
}

// pruneBefore drops leading timestamps at or before cutoff. ts must be sorted.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
