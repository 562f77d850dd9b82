package authkit

import "sync/atomic"

// MetricID identifies one in-process counter. IDs are dense and stable;
// exporters map them to wire names in metrics/export/internaldefs.
type MetricID uint16

const (
	// MetricAccessIssued counts minted access tokens.
	MetricAccessIssued MetricID = iota
	// MetricRefreshIssued counts minted refresh tokens (login and rotation).
	MetricRefreshIssued
	// MetricRenewSuccess counts successful token-pair rotations.
	MetricRenewSuccess
	// MetricRenewFailure counts rejected rotation attempts of any cause.
	MetricRenewFailure
	// MetricRefreshReuseDetected counts replays of rotated-away refresh tokens.
	MetricRefreshReuseDetected
	// MetricStaleAccessAccepted counts requests authenticated via the
	// refresh-cookie fallback after an expired or absent access token.
	MetricStaleAccessAccepted
	// MetricForcedRenewal counts renewals triggered ahead of expiry by a
	// privilege-changing request.
	MetricForcedRenewal
	// MetricUnauthorized counts requests rejected by the authentication filter.
	MetricUnauthorized
	// MetricLogout counts logout operations.
	MetricLogout
	// MetricStoreError counts refresh-token store outages.
	MetricStoreError
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed-size set of atomic counters. A disabled instance is a
// no-op on every path; there is no locking anywhere.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies all counters. Counters are read individually, not under a
// lock; the snapshot is consistent per counter, not across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
