package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/llmgateway/llmgateway/common"
)

// Request accounting modes. Mode is what the caller asked for; UsedMode is
// what the request actually billed against.
const (
	ModeAPIKeys = "api-keys"
	ModeCredits = "credits"
	ModeHybrid  = "hybrid"
)

// Log is one relayed request. A row is unprocessed until the credit batcher
// stamps ProcessedAt; that happens exactly once.
type Log struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	RequestID      string    `gorm:"size:64;index" json:"requestId"`
	OrganizationID string    `gorm:"size:64;index" json:"organizationId"`
	ProjectID      string    `gorm:"size:64;index:idx_logs_project_created" json:"projectId"`
	ApiKeyID       string    `gorm:"size:64;index" json:"apiKeyId"`
	CreatedAt      time.Time `gorm:"index:idx_logs_project_created" json:"createdAt"`

	Duration         int64  `json:"duration"` // milliseconds
	TimeToFirstToken *int64 `json:"timeToFirstToken,omitempty"`

	RequestedModel    string `gorm:"size:128" json:"requestedModel"`
	RequestedProvider string `gorm:"size:64" json:"requestedProvider,omitempty"`
	UsedModel         string `gorm:"size:128" json:"usedModel"`
	UsedProvider      string `gorm:"size:64" json:"usedProvider"`
	UsedModelMapping  string `gorm:"size:128" json:"usedModelMapping,omitempty"`

	ResponseSize     int     `json:"responseSize"`
	Messages         *string `gorm:"type:text" json:"messages,omitempty"`
	Content          *string `gorm:"type:text" json:"content,omitempty"`
	ReasoningContent *string `gorm:"type:text" json:"reasoningContent,omitempty"`
	Tools            *string `gorm:"type:text" json:"tools,omitempty"`
	ToolChoice       *string `gorm:"type:text" json:"toolChoice,omitempty"`
	ToolResults      *string `gorm:"type:text" json:"toolResults,omitempty"`

	FinishReason        string `gorm:"size:32" json:"finishReason"`
	UnifiedFinishReason string `gorm:"size:32" json:"unifiedFinishReason"`

	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	ReasoningTokens  int `json:"reasoningTokens"`
	CachedTokens     int `json:"cachedTokens"`
	TotalTokens      int `json:"totalTokens"`

	Cost            decimal.Decimal `gorm:"type:decimal(30,15)" json:"cost"`
	InputCost       decimal.Decimal `gorm:"type:decimal(30,15)" json:"inputCost"`
	OutputCost      decimal.Decimal `gorm:"type:decimal(30,15)" json:"outputCost"`
	CachedInputCost decimal.Decimal `gorm:"type:decimal(30,15)" json:"cachedInputCost"`
	RequestCost     decimal.Decimal `gorm:"type:decimal(30,15)" json:"requestCost"`
	ImageInputCost  decimal.Decimal `gorm:"type:decimal(30,15)" json:"imageInputCost"`
	ImageOutputCost decimal.Decimal `gorm:"type:decimal(30,15)" json:"imageOutputCost"`
	WebSearchCost   decimal.Decimal `gorm:"type:decimal(30,15)" json:"webSearchCost"`
	DataStorageCost decimal.Decimal `gorm:"type:decimal(30,15)" json:"dataStorageCost"`
	ServiceFee      decimal.Decimal `gorm:"type:decimal(30,15)" json:"serviceFee,omitempty"`

	EstimatedCost bool    `json:"estimatedCost"`
	Discount      float64 `json:"discount,omitempty"`
	PricingTier   string  `gorm:"size:64" json:"pricingTier,omitempty"`

	Canceled bool   `json:"canceled"`
	Streamed bool   `json:"streamed"`
	Cached   bool   `json:"cached"`
	HasError bool   `json:"hasError"`
	Mode     string `gorm:"size:16" json:"mode"`
	UsedMode string `gorm:"size:16" json:"usedMode"`
	Source   string `gorm:"size:64" json:"source,omitempty"`

	ErrorDetails    *string `gorm:"type:text" json:"errorDetails,omitempty"`
	RoutingMetadata *string `gorm:"type:text" json:"routingMetadata,omitempty"`

	// Partial indexes keep the two worker scans off already-handled rows.
	ProcessedAt            *time.Time `gorm:"index:idx_logs_unprocessed,where:processed_at IS NULL" json:"processedAt,omitempty"`
	DataRetentionCleanedUp bool       `gorm:"index:idx_logs_retention_pending,where:data_retention_cleaned_up = false" json:"-"`
}

// StripRetainedContent clears the verbose columns for organizations with
// retention level "none". Token counts and costs stay. The row is marked
// cleaned so the retention sweep never revisits it.
func (l *Log) StripRetainedContent() {
	l.Messages = nil
	l.Content = nil
	l.ReasoningContent = nil
	l.Tools = nil
	l.ToolChoice = nil
	l.ToolResults = nil
	l.DataRetentionCleanedUp = true
}

// InsertLogs bulk-inserts a batch of log rows.
func InsertLogs(logs []*Log) error {
	if len(logs) == 0 {
		return nil
	}
	return errors.Wrap(DB.CreateInBatches(logs, 100).Error, "bulk insert logs")
}

// FetchUnprocessedLogs selects up to limit unprocessed rows oldest first,
// row-locked so concurrent batchers skip each other's work. The lock clause
// is a Postgres capability; other dialects rely on the distributed lock
// alone.
func FetchUnprocessedLogs(tx *gorm.DB, limit int) ([]*Log, error) {
	query := tx.Where("processed_at IS NULL").Order("created_at ASC").Limit(limit)
	if common.UsingPostgreSQL {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var logs []*Log
	if err := query.Find(&logs).Error; err != nil {
		return nil, errors.Wrap(err, "fetch unprocessed logs")
	}
	return logs, nil
}

// MarkLogsProcessed stamps ProcessedAt on the given rows.
func MarkLogsProcessed(tx *gorm.DB, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := tx.Model(&Log{}).Where("id IN ?", ids).Update("processed_at", now).Error
	return errors.Wrap(err, "mark logs processed")
}

// SetLogServiceFee persists the BYOK fee computed for one log row.
func SetLogServiceFee(tx *gorm.DB, id int64, fee decimal.Decimal) error {
	err := tx.Model(&Log{}).Where("id = ?", id).Update("service_fee", fee).Error
	return errors.Wrap(err, "set log service fee")
}

// CleanupRetainedContent nulls the verbose columns on logs older than the
// cutoff. The cleaned flag confines each sweep to rows not yet handled.
// Returns the number of rows touched.
func CleanupRetainedContent(cutoff time.Time) (int64, error) {
	tx := DB.Model(&Log{}).
		Where("created_at < ?", cutoff).
		Where(map[string]any{"data_retention_cleaned_up": false}).
		Updates(map[string]any{
			"messages":                  nil,
			"content":                   nil,
			"reasoning_content":         nil,
			"tools":                     nil,
			"tool_choice":               nil,
			"tool_results":              nil,
			"data_retention_cleaned_up": true,
		})
	return tx.RowsAffected, errors.Wrap(tx.Error, "cleanup retained content")
}
