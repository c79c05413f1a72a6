package prom

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a lightweight in-memory observer that maintains counters
// and simple sums. It implements the xcell.Observer interface; wrap it
// in a Collector to expose the same numbers to Prometheus.
type Metrics struct {
	// handles
	clones atomic.Int64
	drops  atomic.Int64
	freed  atomic.Int64

	// unwrap protocol
	waits         atomic.Int64
	waitsFinished atomic.Int64
	waitsFailed   atomic.Int64
	waitSumNs     atomic.Int64

	// poisoning
	poisoned atomic.Int64
}

// New returns a new Metrics observer.
func New() *Metrics { return &Metrics{} }

// HandleCloned records a clone.
func (m *Metrics) HandleCloned(_ int64) {
	m.clones.Add(1)
}

// HandleDropped records a handle retirement.
func (m *Metrics) HandleDropped(_ int64) {
	m.drops.Add(1)
}

// UnwrapWaitStarted records an unwrapper beginning to block.
func (m *Metrics) UnwrapWaitStarted() {
	m.waits.Add(1)
}

// UnwrapWaitFinished records the end of a wait, accumulating blocked
// time and tracking cancellations.
func (m *Metrics) UnwrapWaitFinished(wait time.Duration, err error) {
	m.waitsFinished.Add(1)
	m.waitSumNs.Add(wait.Nanoseconds())
	if err != nil {
		m.waitsFailed.Add(1)
	}
}

// PayloadFreed records a payload destroyed without extraction.
func (m *Metrics) PayloadFreed() {
	m.freed.Add(1)
}

// CellPoisoned records an aborted critical section.
func (m *Metrics) CellPoisoned() {
	m.poisoned.Add(1)
}

// Snapshot exposes a copy of current metric values for exporting/inspection.
type Snapshot struct {
	Clones        int64
	Drops         int64
	Freed         int64
	Waits         int64
	WaitsFinished int64
	WaitsFailed   int64
	WaitSumNs     int64
	Poisoned      int64
}

// GetSnapshot returns the current metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	return Snapshot{
		Clones:        m.clones.Load(),
		Drops:         m.drops.Load(),
		Freed:         m.freed.Load(),
		Waits:         m.waits.Load(),
		WaitsFinished: m.waitsFinished.Load(),
		WaitsFailed:   m.waitsFailed.Load(),
		WaitSumNs:     m.waitSumNs.Load(),
		Poisoned:      m.poisoned.Load(),
	}
}

// Collector adapts a Metrics to prometheus.Collector using const
// metrics, so callers register it with whatever registry they own.
type Collector struct {
	m *Metrics

	clones   *prometheus.Desc
	drops    *prometheus.Desc
	freed    *prometheus.Desc
	waits    *prometheus.Desc
	failed   *prometheus.Desc
	waitTime *prometheus.Desc
	poisoned *prometheus.Desc
}

// NewCollector returns a Collector reading from m.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		m: m,
		clones: prometheus.NewDesc("xcell_handle_clones_total",
			"Handles cloned across all observed allocations.", nil, nil),
		drops: prometheus.NewDesc("xcell_handle_drops_total",
			"Handles retired across all observed allocations.", nil, nil),
		freed: prometheus.NewDesc("xcell_payloads_freed_total",
			"Payloads destroyed without extraction.", nil, nil),
		waits: prometheus.NewDesc("xcell_unwrap_waits_total",
			"Unwrap calls that had to block for sibling handles.", nil, nil),
		failed: prometheus.NewDesc("xcell_unwrap_waits_cancelled_total",
			"Blocking unwrap calls that ended in cancellation.", nil, nil),
		waitTime: prometheus.NewDesc("xcell_unwrap_wait_seconds_total",
			"Total time unwrappers spent blocked.", nil, nil),
		poisoned: prometheus.NewDesc("xcell_cells_poisoned_total",
			"Critical sections that aborted and poisoned their cell.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.clones
	ch <- c.drops
	ch <- c.freed
	ch <- c.waits
	ch <- c.failed
	ch <- c.waitTime
	ch <- c.poisoned
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.GetSnapshot()
	ch <- prometheus.MustNewConstMetric(c.clones, prometheus.CounterValue, float64(s.Clones))
	ch <- prometheus.MustNewConstMetric(c.drops, prometheus.CounterValue, float64(s.Drops))
	ch <- prometheus.MustNewConstMetric(c.freed, prometheus.CounterValue, float64(s.Freed))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(s.Waits))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.WaitsFailed))
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue,
		float64(s.WaitSumNs)/1e9)
	ch <- prometheus.MustNewConstMetric(c.poisoned, prometheus.CounterValue, float64(s.Poisoned))
}
