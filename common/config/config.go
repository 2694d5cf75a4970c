package config

import (
	"os"
	"strings"
	"time"

	"github.com/llmgateway/llmgateway/common/env"
)

var (
	Port      = env.String("PORT", "4001")
	DebugMode = env.Bool("DEBUG", false)

	// TestMode disables random exploration and other nondeterminism in tests.
	TestMode = strings.HasSuffix(os.Args[0], ".test")

	SQLDSN          = env.String("SQL_DSN", "")
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)

	RedisConnString = env.String("REDIS_CONN_STRING", "")

	// LogQueueKey is the Redis list that buffers request log records between
	// the dispatcher and the log consumer.
	LogQueueKey = env.String("LOG_QUEUE", "LOG_QUEUE")

	CreditBatchSize          = env.Int("CREDIT_BATCH_SIZE", 100)
	CreditBatchInterval      = time.Duration(env.Int("CREDIT_BATCH_INTERVAL", 5)) * time.Second
	ByokFeePercentage        = env.Float64("BYOK_FEE_PERCENTAGE", 0.05)
	ReferralSharePercentage  = env.Float64("REFERRAL_SHARE_PERCENTAGE", 0.01)
	EnableDataRetentionClean = env.Bool("ENABLE_DATA_RETENTION_CLEANUP", false)
	DataRetentionDays        = env.Int("DATA_RETENTION_DAYS", 30)

	StatsBatchSize            = env.Int("STATS_BATCH_SIZE", 100)
	StatsRefreshInterval      = time.Duration(env.Int("PROJECT_STATS_REFRESH_INTERVAL_SECONDS", 60)) * time.Second
	CurrentMinuteHistInterval = time.Duration(env.Int("CURRENT_MINUTE_HISTORY_INTERVAL_SECONDS", 5)) * time.Second
	StatsBackfillEnabled      = env.Bool("STATS_BACKFILL_ENABLED", true)
	StatsBackfillDays         = env.Int("STATS_BACKFILL_DAYS", 30)
	StatsStaleEnabled         = env.Bool("STATS_STALE_ENABLED", true)
	StatsStaleDays            = env.Int("STATS_STALE_DAYS", 7)

	// AutoModel is the catalog model the "auto" alias routes to.
	AutoModel = env.String("AUTO_MODEL", "gpt-5")

	// UptimeFallbackThreshold is the provider uptime (percent) below which the
	// dispatcher tries the next-best candidate before giving up on the scorer's
	// first choice.
	UptimeFallbackThreshold = env.Float64("UPTIME_FALLBACK_THRESHOLD", 80)

	// RelayTimeout caps the entire upstream request, matching the playground
	// upper bound.
	RelayTimeout = time.Duration(env.Int("RELAY_TIMEOUT", 300)) * time.Second

	// StreamKeepaliveInterval is the maximum client-visible idle gap before an
	// SSE comment ping is written.
	StreamKeepaliveInterval = time.Duration(env.Int("STREAM_KEEPALIVE_SECONDS", 15)) * time.Second

	OpenTelemetryEnabled     = env.Bool("OTEL_ENABLED", false)
	OpenTelemetryEndpoint    = env.String("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	OpenTelemetryInsecure    = env.Bool("OTEL_EXPORTER_OTLP_INSECURE", false)
	OpenTelemetryServiceName = env.String("OTEL_SERVICE_NAME", "llmgateway")
	OpenTelemetryEnvironment = env.String("OTEL_ENVIRONMENT", "")
)

// AuthFailureSubstrings marks upstream error bodies that indicate a dead
// credential regardless of HTTP status. Matching is case-insensitive.
var AuthFailureSubstrings = []string{
	"invalid api key",
	"invalid x-api-key",
	"incorrect api key",
	"authentication_error",
	"account is not active",
	"api key expired",
}
