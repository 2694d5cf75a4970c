package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"

	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/helper"
)

// Hourly aggregate rows. Hour is kept as a "YYYY-MM-DD HH:00:00" string and
// compared as text so driver-local timezones cannot skew timezone-less
// columns.
type ProjectHourlyStats struct {
	ProjectID        string          `gorm:"primaryKey;size:64" json:"projectId"`
	Hour             string          `gorm:"primaryKey;size:19" json:"hour"`
	RequestCount     int64           `json:"requestCount"`
	ErrorCount       int64           `json:"errorCount"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(30,15)" json:"totalCost"`
	PromptTokens     int64           `json:"promptTokens"`
	CompletionTokens int64           `json:"completionTokens"`
	TotalTokens      int64           `json:"totalTokens"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type ProjectHourlyModelStats struct {
	ProjectID        string          `gorm:"primaryKey;size:64" json:"projectId"`
	Hour             string          `gorm:"primaryKey;size:19" json:"hour"`
	UsedModel        string          `gorm:"primaryKey;size:128" json:"usedModel"`
	UsedProvider     string          `gorm:"primaryKey;size:64" json:"usedProvider"`
	RequestCount     int64           `json:"requestCount"`
	ErrorCount       int64           `json:"errorCount"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(30,15)" json:"totalCost"`
	PromptTokens     int64           `json:"promptTokens"`
	CompletionTokens int64           `json:"completionTokens"`
	TotalTokens      int64           `json:"totalTokens"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type ApiKeyHourlyStats struct {
	ApiKeyID         string          `gorm:"primaryKey;size:64" json:"apiKeyId"`
	Hour             string          `gorm:"primaryKey;size:19" json:"hour"`
	ProjectID        string          `gorm:"size:64;index" json:"projectId"`
	RequestCount     int64           `json:"requestCount"`
	ErrorCount       int64           `json:"errorCount"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(30,15)" json:"totalCost"`
	PromptTokens     int64           `json:"promptTokens"`
	CompletionTokens int64           `json:"completionTokens"`
	TotalTokens      int64           `json:"totalTokens"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type ApiKeyHourlyModelStats struct {
	ApiKeyID         string          `gorm:"primaryKey;size:64" json:"apiKeyId"`
	Hour             string          `gorm:"primaryKey;size:19" json:"hour"`
	UsedModel        string          `gorm:"primaryKey;size:128" json:"usedModel"`
	UsedProvider     string          `gorm:"primaryKey;size:64" json:"usedProvider"`
	ProjectID        string          `gorm:"size:64;index" json:"projectId"`
	RequestCount     int64           `json:"requestCount"`
	ErrorCount       int64           `json:"errorCount"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(30,15)" json:"totalCost"`
	PromptTokens     int64           `json:"promptTokens"`
	CompletionTokens int64           `json:"completionTokens"`
	TotalTokens      int64           `json:"totalTokens"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// StatsBucket identifies one project-hour aggregation unit.
type StatsBucket struct {
	ProjectID string
	Hour      string
}

// hourExpr renders the SQL expression that floors created_at to the
// canonical hour-key string for the active dialect.
func hourExpr(column string) string {
	switch {
	case common.UsingPostgreSQL:
		return "to_char(date_trunc('hour', " + column + "), 'YYYY-MM-DD HH24:00:00')"
	case common.UsingMySQL:
		return "DATE_FORMAT(" + column + ", '%Y-%m-%d %H:00:00')"
	default:
		return "strftime('%Y-%m-%d %H:00:00', " + column + ")"
	}
}

// FindBackfillBuckets returns project-hour pairs inside [since, before) with
// no aggregate row yet. The since bound keeps the scan off ancient log
// history.
func FindBackfillBuckets(since, before time.Time, limit int) ([]StatsBucket, error) {
	expr := hourExpr("l.created_at")
	var buckets []StatsBucket
	err := DB.Raw(
		"SELECT DISTINCT l.project_id, "+expr+" AS hour"+
			" FROM logs l"+
			" LEFT JOIN project_hourly_stats s ON s.project_id = l.project_id AND s.hour = "+expr+
			" WHERE l.created_at >= ? AND l.created_at < ? AND s.project_id IS NULL"+
			" LIMIT ?", since, before, limit,
	).Scan(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "find backfill buckets")
	}
	return buckets, nil
}

// FindStaleBuckets returns aggregate rows no older than since whose bucket
// received logs after the row was last written. Hour keys compare as text, so
// the since bound is its hour key.
func FindStaleBuckets(since time.Time, limit int) ([]StatsBucket, error) {
	expr := hourExpr("l.created_at")
	var buckets []StatsBucket
	err := DB.Raw(
		"SELECT s.project_id, s.hour FROM project_hourly_stats s"+
			" WHERE s.hour >= ?"+
			" AND EXISTS (SELECT 1 FROM logs l WHERE l.project_id = s.project_id"+
			" AND "+expr+" = s.hour AND l.created_at > s.updated_at)"+
			" LIMIT ?", helper.HourKey(since), limit,
	).Scan(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "find stale buckets")
	}
	return buckets, nil
}

// FindCurrentHourProjects returns every project with logs since hourStart.
func FindCurrentHourProjects(hourStart time.Time) ([]string, error) {
	var projects []string
	err := DB.Model(&Log{}).Distinct("project_id").
		Where("created_at >= ?", hourStart).
		Pluck("project_id", &projects).Error
	if err != nil {
		return nil, errors.Wrap(err, "find current hour projects")
	}
	return projects, nil
}

// upsertSuffix renders the dialect's idempotent-insert clause for the given
// conflict key.
func upsertSuffix(conflictCols string) string {
	update := "request_count = excluded.request_count," +
		" error_count = excluded.error_count," +
		" total_cost = excluded.total_cost," +
		" prompt_tokens = excluded.prompt_tokens," +
		" completion_tokens = excluded.completion_tokens," +
		" total_tokens = excluded.total_tokens," +
		" updated_at = excluded.updated_at"
	if common.UsingMySQL {
		return " AS excluded ON DUPLICATE KEY UPDATE " + update
	}
	return " ON CONFLICT (" + conflictCols + ") DO UPDATE SET " + update
}

const statsAggregateColumns = " COUNT(*)," +
	" SUM(CASE WHEN has_error THEN 1 ELSE 0 END)," +
	" COALESCE(SUM(cost), 0)," +
	" COALESCE(SUM(prompt_tokens), 0)," +
	" COALESCE(SUM(completion_tokens), 0)," +
	" COALESCE(SUM(total_tokens), 0)"

// UpsertHourlyStats recomputes the four aggregate tables for one
// project-hour bucket. Each statement recomputes the bucket from the logs
// table, so re-running it converges rather than double-counts.
func UpsertHourlyStats(projectID string, hour string) error {
	hourStart, err := time.Parse("2006-01-02 15:00:00", hour)
	if err != nil {
		return errors.Wrapf(err, "parse hour key %q", hour)
	}
	hourEnd := hourStart.Add(time.Hour)
	now := time.Now().UTC()

	err = DB.Exec(
		"INSERT INTO project_hourly_stats"+
			" (project_id, hour, request_count, error_count, total_cost, prompt_tokens, completion_tokens, total_tokens, updated_at)"+
			" SELECT project_id, ?,"+statsAggregateColumns+", ?"+
			" FROM logs WHERE project_id = ? AND created_at >= ? AND created_at < ?"+
			" GROUP BY project_id"+
			upsertSuffix("project_id, hour"),
		hour, now, projectID, hourStart, hourEnd,
	).Error
	if err != nil {
		return errors.Wrap(err, "upsert project hourly stats")
	}

	err = DB.Exec(
		"INSERT INTO project_hourly_model_stats"+
			" (project_id, hour, used_model, used_provider, request_count, error_count, total_cost, prompt_tokens, completion_tokens, total_tokens, updated_at)"+
			" SELECT project_id, ?, used_model, used_provider,"+statsAggregateColumns+", ?"+
			" FROM logs WHERE project_id = ? AND created_at >= ? AND created_at < ?"+
			" GROUP BY project_id, used_model, used_provider"+
			upsertSuffix("project_id, hour, used_model, used_provider"),
		hour, now, projectID, hourStart, hourEnd,
	).Error
	if err != nil {
		return errors.Wrap(err, "upsert project hourly model stats")
	}

	err = DB.Exec(
		"INSERT INTO api_key_hourly_stats"+
			" (api_key_id, hour, project_id, request_count, error_count, total_cost, prompt_tokens, completion_tokens, total_tokens, updated_at)"+
			" SELECT api_key_id, ?, project_id,"+statsAggregateColumns+", ?"+
			" FROM logs WHERE project_id = ? AND created_at >= ? AND created_at < ?"+
			" GROUP BY api_key_id, project_id"+
			upsertSuffix("api_key_id, hour"),
		hour, now, projectID, hourStart, hourEnd,
	).Error
	if err != nil {
		return errors.Wrap(err, "upsert api key hourly stats")
	}

	err = DB.Exec(
		"INSERT INTO api_key_hourly_model_stats"+
			" (api_key_id, hour, used_model, used_provider, project_id, request_count, error_count, total_cost, prompt_tokens, completion_tokens, total_tokens, updated_at)"+
			" SELECT api_key_id, ?, used_model, used_provider, project_id,"+statsAggregateColumns+", ?"+
			" FROM logs WHERE project_id = ? AND created_at >= ? AND created_at < ?"+
			" GROUP BY api_key_id, used_model, used_provider, project_id"+
			upsertSuffix("api_key_id, hour, used_model, used_provider"),
		hour, now, projectID, hourStart, hourEnd,
	).Error
	return errors.Wrap(err, "upsert api key hourly model stats")
}

// CurrentHourKey is the bucket key for now.
func CurrentHourKey() string {
	return helper.HourKey(time.Now())
}
