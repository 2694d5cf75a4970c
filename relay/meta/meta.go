// Package meta carries the per-request relay state shared between the
// dispatcher and the provider adaptors.
package meta

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common/ctxkey"
)

// Meta carries the state of the current relay attempt. Retries against a
// fallback provider overwrite the provider and credential fields.
type Meta struct {
	RequestID      string
	OrganizationID string
	ProjectID      string
	APIKeyID       string

	Provider *catalog.Provider
	Model    *catalog.Model
	Mapping  *catalog.Mapping

	// OriginModelName is what the caller sent; ActualModelName is the
	// provider's wire name from the mapping.
	OriginModelName string
	ActualModelName string

	BaseURL string
	APIKey  string
	// KeyEnvVar and KeyIndex identify the upstream credential for health
	// reporting.
	KeyEnvVar string
	KeyIndex  int

	IsStream  bool
	StartTime time.Time
	// FirstChunkAt is when the first chunk reached the client; zero until a
	// stream handler writes one.
	FirstChunkAt time.Time
}

// MarkFirstChunk records the first chunk write. Later calls are no-ops.
func (m *Meta) MarkFirstChunk() {
	if m.FirstChunkAt.IsZero() {
		m.FirstChunkAt = time.Now()
	}
}

// GetByContext builds a Meta skeleton from gin context values set by the
// auth middleware. Provider and key fields are filled in by the dispatcher.
func GetByContext(c *gin.Context) *Meta {
	return &Meta{
		RequestID:      c.GetString(ctxkey.RequestId),
		OrganizationID: c.GetString(ctxkey.OrganizationId),
		ProjectID:      c.GetString(ctxkey.ProjectId),
		APIKeyID:       c.GetString(ctxkey.ApiKeyId),
		StartTime:      time.Now(),
	}
}
