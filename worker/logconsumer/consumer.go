// Package logconsumer drains the Redis log queue into the database.
package logconsumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/llmgateway/llmgateway/common/logger"
	"github.com/llmgateway/llmgateway/common/rdb"
	"github.com/llmgateway/llmgateway/model"
)

const (
	popTimeout   = 5 * time.Second
	drainTimeout = 100 * time.Millisecond
	batchSize    = 50
	maxAttempts  = 5
)

// Start blocks on the log queue until the context is canceled. Delivery is
// at-least-once; failed batches are requeued message by message.
func Start(ctx context.Context) {
	if !rdb.Enabled() {
		logger.Logger.Warn("redis not configured, log consumer disabled")
		return
	}
	logger.Logger.Info("log consumer started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payloads := popBatch(ctx)
		if len(payloads) == 0 {
			continue
		}
		if err := handleBatch(ctx, payloads); err != nil {
			logger.Logger.Error("log batch failed, requeueing",
				zap.Int("count", len(payloads)), zap.Error(err))
			requeueAll(ctx, payloads)
		}
	}
}

// popBatch blocks for the first message, then drains quickly up to the batch
// size so bursts insert in one statement.
func popBatch(ctx context.Context) [][]byte {
	first, err := rdb.PopLog(ctx, popTimeout)
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Logger.Error("pop log queue", zap.Error(err))
		}
		return nil
	}
	payloads := [][]byte{first}
	for len(payloads) < batchSize {
		next, err := rdb.PopLog(ctx, drainTimeout)
		if err != nil {
			break
		}
		payloads = append(payloads, next)
	}
	return payloads
}

func handleBatch(ctx context.Context, payloads [][]byte) error {
	logs, bad := decodeBatch(payloads)
	if len(bad) > 0 {
		logger.Logger.Error("dropping undecodable log messages", zap.Int("count", len(bad)))
	}
	if len(logs) == 0 {
		return nil
	}

	if err := applyRetention(logs); err != nil {
		return err
	}
	return insertWithBackoff(ctx, logs)
}

func decodeBatch(payloads [][]byte) (logs []*model.Log, bad [][]byte) {
	for _, payload := range payloads {
		var l model.Log
		if err := json.Unmarshal(payload, &l); err != nil {
			bad = append(bad, payload)
			continue
		}
		logs = append(logs, &l)
	}
	return logs, bad
}

// applyRetention strips verbose content for organizations that opted out of
// retention before anything reaches the database.
func applyRetention(logs []*model.Log) error {
	seen := map[string]bool{}
	var orgIDs []string
	for _, l := range logs {
		if l.OrganizationID != "" && !seen[l.OrganizationID] {
			seen[l.OrganizationID] = true
			orgIDs = append(orgIDs, l.OrganizationID)
		}
	}
	levels, err := model.GetRetentionLevels(orgIDs)
	if err != nil {
		return errors.Wrap(err, "load retention levels")
	}
	for _, l := range logs {
		if levels[l.OrganizationID] == model.RetentionNone {
			l.StripRetainedContent()
		}
	}
	return nil
}

func insertWithBackoff(ctx context.Context, logs []*model.Log) error {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = model.InsertLogs(logs)
		if lastErr == nil {
			return nil
		}
		logger.Logger.Warn("insert log batch failed",
			zap.Int("attempt", attempt), zap.Error(lastErr))
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context canceled during backoff")
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return errors.Wrapf(lastErr, "insert log batch after %d attempts", maxAttempts)
}

func requeueAll(ctx context.Context, payloads [][]byte) {
	for _, payload := range payloads {
		if err := rdb.RequeueLog(ctx, payload); err != nil {
			logger.Logger.Error("requeue log message", zap.Error(err))
		}
	}
}

// EnqueueLog serializes a log record onto the queue without blocking the
// request path; failures only lose the single record. Without Redis the
// record is written straight to the database instead.
func EnqueueLog(l *model.Log) {
	payload, err := json.Marshal(l)
	if err != nil {
		logger.Logger.Error("marshal log record", zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !rdb.Enabled() {
			if model.DB == nil {
				return
			}
			if err := handleBatch(ctx, [][]byte{payload}); err != nil {
				logger.Logger.Error("insert log record", zap.Error(err))
			}
			return
		}
		if err := rdb.PushLog(ctx, payload); err != nil {
			logger.Logger.Error("push log record", zap.Error(err))
		}
	}()
}
