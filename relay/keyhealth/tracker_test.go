package keyhealth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTracker(start time.Time) (*Tracker, *time.Time) {
	t := NewTracker()
	now := start
	t.SetNowFunc(func() time.Time { return now })
	return t, &now
}

func TestIsHealthy_FreshKey(t *testing.T) {
	tr := NewTracker()
	require.True(t, tr.IsHealthy("OPENAI_API_KEY", 0))
}

func TestConsecutiveErrorsTripAndCooldown(t *testing.T) {
	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(start)

	tr.ReportError("OPENAI_API_KEY", 0, 500, "internal error")
	tr.ReportError("OPENAI_API_KEY", 0, 502, "bad gateway")
	require.True(t, tr.IsHealthy("OPENAI_API_KEY", 0))

	tr.ReportError("OPENAI_API_KEY", 0, 500, "internal error")
	require.False(t, tr.IsHealthy("OPENAI_API_KEY", 0))

	*now = start.Add(29 * time.Second)
	require.False(t, tr.IsHealthy("OPENAI_API_KEY", 0))

	*now = start.Add(30 * time.Second)
	require.True(t, tr.IsHealthy("OPENAI_API_KEY", 0))

	// Cooldown expiry reset the streak; a single new error does not trip it.
	tr.ReportError("OPENAI_API_KEY", 0, 500, "internal error")
	require.True(t, tr.IsHealthy("OPENAI_API_KEY", 0))
	m := tr.GetMetrics("OPENAI_API_KEY", 0)
	require.Equal(t, 1, m.ConsecutiveErrors)
}

func TestSuccessResetsStreak(t *testing.T) {
	tr := NewTracker()
	tr.ReportError("GROQ_API_KEY", 0, 500, "")
	tr.ReportError("GROQ_API_KEY", 0, 500, "")
	tr.ReportSuccess("GROQ_API_KEY", 0)
	tr.ReportError("GROQ_API_KEY", 0, 500, "")
	tr.ReportError("GROQ_API_KEY", 0, 500, "")
	require.True(t, tr.IsHealthy("GROQ_API_KEY", 0))
}

func TestAuthStatusBlacklistsPermanently(t *testing.T) {
	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(start)

	tr.ReportError("ANTHROPIC_API_KEY", 1, 401, "")
	require.False(t, tr.IsHealthy("ANTHROPIC_API_KEY", 1))

	*now = start.Add(time.Hour)
	require.False(t, tr.IsHealthy("ANTHROPIC_API_KEY", 1))

	tr.ReportSuccess("ANTHROPIC_API_KEY", 1)
	require.False(t, tr.IsHealthy("ANTHROPIC_API_KEY", 1))

	require.True(t, tr.GetMetrics("ANTHROPIC_API_KEY", 1).PermanentlyBlacklisted)
	// Sibling key on the same env var is unaffected.
	require.True(t, tr.IsHealthy("ANTHROPIC_API_KEY", 0))
}

func TestAuthErrorTextBlacklistsPermanently(t *testing.T) {
	tr := NewTracker()
	tr.ReportError("MISTRAL_API_KEY", 0, 400, `{"error":{"message":"Incorrect API key provided"}}`)
	require.False(t, tr.IsHealthy("MISTRAL_API_KEY", 0))
}

func TestUptimeWindow(t *testing.T) {
	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(start)

	for i := 0; i < 8; i++ {
		tr.ReportSuccess("DEEPSEEK_API_KEY", 0)
	}
	tr.ReportError("DEEPSEEK_API_KEY", 0, 500, "")
	tr.ReportError("DEEPSEEK_API_KEY", 0, 500, "")

	m := tr.GetMetrics("DEEPSEEK_API_KEY", 0)
	require.Equal(t, 8, m.Successes)
	require.Equal(t, 2, m.Errors)
	require.InDelta(t, 80.0, m.Uptime, 1e-9)

	// Everything ages out of the five-minute window.
	*now = start.Add(6 * time.Minute)
	m = tr.GetMetrics("DEEPSEEK_API_KEY", 0)
	require.Equal(t, 0, m.Successes)
	require.Equal(t, 0, m.Errors)
	require.Equal(t, 100.0, m.Uptime)
}

func TestHistoryBounded(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 1500; i++ {
		tr.ReportSuccess("NOVITA_API_KEY", 0)
	}
	m := tr.GetMetrics("NOVITA_API_KEY", 0)
	require.Equal(t, 1000, m.Successes)
}

func TestUptimePenalty(t *testing.T) {
	require.Equal(t, 0.0, UptimePenalty(100))
	require.Equal(t, 0.0, UptimePenalty(95))
	require.Greater(t, UptimePenalty(50), UptimePenalty(90))
	require.InDelta(t, 25.0, UptimePenalty(0), 1e-9)
}

func TestConcurrentReports(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if n%2 == 0 {
					tr.ReportSuccess("SHARED_API_KEY", 0)
				} else {
					tr.ReportError("SHARED_API_KEY", 0, 500, "")
				}
				tr.IsHealthy("SHARED_API_KEY", 0)
			}
		}(i)
	}
	wg.Wait()
	m := tr.GetMetrics("SHARED_API_KEY", 0)
	require.Equal(t, 800, m.Successes+m.Errors)
}
