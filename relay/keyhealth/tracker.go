// Package keyhealth tracks per-upstream-credential reliability in memory.
// Records are keyed by (env var, key index) so individual entries of a
// comma-separated key list are blamed separately.
package keyhealth

import (
	"strings"
	"sync"
	"time"

	"github.com/llmgateway/llmgateway/common/config"
)

const (
	// consecutiveErrorLimit trips the temporary blacklist.
	consecutiveErrorLimit = 3
	// temporaryBlacklistWindow is how long a tripped key sits out.
	temporaryBlacklistWindow = 30 * time.Second
	// historyWindow bounds the sliding uptime window.
	historyWindow = 5 * time.Minute
	// historyLimit caps the ring so a hot key cannot grow unbounded.
	historyLimit = 1000
)

type sample struct {
	ts      time.Time
	success bool
}

type record struct {
	mu                     sync.Mutex
	consecutiveErrors      int
	lastErrorTime          time.Time
	permanentlyBlacklisted bool
	history                []sample
}

// Metrics is a read-only snapshot of one key's sliding window.
type Metrics struct {
	Uptime                 float64
	Successes              int
	Errors                 int
	ConsecutiveErrors      int
	PermanentlyBlacklisted bool
}

// Tracker is the process-wide health map. The zero value is not usable; use
// NewTracker.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock. Tests only.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	t.now = now
}

func key(envVar string, idx int) string {
	return envVar + "#" + itoa(idx)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

func (t *Tracker) get(envVar string, idx int) *record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[key(envVar, idx)]
	if !ok {
		r = &record{}
		t.records[key(envVar, idx)] = r
	}
	return r
}

// prune drops samples older than the window. Callers hold r.mu.
func (r *record) prune(now time.Time) {
	cutoff := now.Add(-historyWindow)
	kept := r.history[:0]
	for _, s := range r.history {
		if !s.ts.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	r.history = kept
}

func (r *record) append(now time.Time, success bool) {
	r.prune(now)
	r.history = append(r.history, sample{ts: now, success: success})
	if len(r.history) > historyLimit {
		r.history = r.history[len(r.history)-historyLimit:]
	}
}

// IsHealthy reports whether the key may be used right now. When the temporary
// blacklist window has expired the consecutive-error counter resets as a side
// effect, so the next error starts a fresh streak.
func (t *Tracker) IsHealthy(envVar string, idx int) bool {
	now := t.now()
	r := t.get(envVar, idx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(now)

	if r.permanentlyBlacklisted {
		return false
	}
	if r.consecutiveErrors < consecutiveErrorLimit {
		return true
	}
	if now.Sub(r.lastErrorTime) >= temporaryBlacklistWindow {
		r.consecutiveErrors = 0
		return true
	}
	return false
}

// ReportSuccess records a successful upstream call.
func (t *Tracker) ReportSuccess(envVar string, idx int) {
	now := t.now()
	r := t.get(envVar, idx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(now, true)
	if !r.permanentlyBlacklisted {
		r.consecutiveErrors = 0
	}
}

// ReportError records a failed upstream call. A 401/403 status, or an error
// body that names a dead credential, blacklists the key permanently.
func (t *Tracker) ReportError(envVar string, idx int, statusCode int, errorText string) {
	now := t.now()
	r := t.get(envVar, idx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(now, false)

	if statusCode == 401 || statusCode == 403 || isAuthFailureText(errorText) {
		r.permanentlyBlacklisted = true
		return
	}
	r.consecutiveErrors++
	r.lastErrorTime = now
}

func isAuthFailureText(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, marker := range config.AuthFailureSubstrings {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// GetMetrics prunes the window and returns the key's current uptime stats.
// Uptime is 100 when the window is empty.
func (t *Tracker) GetMetrics(envVar string, idx int) Metrics {
	now := t.now()
	r := t.get(envVar, idx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(now)

	m := Metrics{
		Uptime:                 100,
		ConsecutiveErrors:      r.consecutiveErrors,
		PermanentlyBlacklisted: r.permanentlyBlacklisted,
	}
	for _, s := range r.history {
		if s.success {
			m.Successes++
		} else {
			m.Errors++
		}
	}
	if total := m.Successes + m.Errors; total > 0 {
		m.Uptime = 100 * float64(m.Successes) / float64(total)
	}
	return m
}

// UptimePenalty converts an uptime percentage into a routing score penalty.
// Healthy keys (>=95%) pay nothing; below that the penalty grows
// quadratically so badly degraded keys are effectively unroutable.
func UptimePenalty(uptime float64) float64 {
	if uptime >= 95 {
		return 0
	}
	deficit := (95 - uptime) / 95 * 5
	return deficit * deficit
}
