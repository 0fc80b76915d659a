package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	decisions    map[string]int64
	downgrades   map[string]int64
	replays      int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		decisions:    make(map[string]int64),
		downgrades:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDecision counts a terminal decision by engine and status.
func (m *Metrics) RecordDecision(engine domain.Engine, status domain.DecisionStatus) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[string(engine)+"|"+string(status)]++
}

// RecordReplay counts a request answered from a stored result.
func (m *Metrics) RecordReplay() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replays++
}

// RecordDowngrade counts a decision downgraded because capability failed.
func (m *Metrics) RecordDowngrade(capability string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downgrades[capability]++
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests   map[string]int64 `json:"requests"`
	Errors     map[string]int64 `json:"errors"`
	Decisions  map[string]int64 `json:"decisions"`
	Downgrades map[string]int64 `json:"downgrades"`
	Replays    int64            `json:"replays"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:   copyCounts(m.requestCount),
		Errors:     copyCounts(m.errorCount),
		Decisions:  copyCounts(m.decisions),
		Downgrades: copyCounts(m.downgrades),
		Replays:    m.replays,
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
