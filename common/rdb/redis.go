package rdb

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/logger"
)

// RDB is the process-wide Redis client. Nil when Redis is not configured;
// callers that can degrade gracefully must check Enabled first.
var RDB *redis.Client

// Enabled reports whether a Redis connection is configured.
func Enabled() bool {
	return RDB != nil
}

// InitRedisClient connects to Redis using REDIS_CONN_STRING. It is a no-op
// when the connection string is empty.
func InitRedisClient(ctx context.Context) error {
	if config.RedisConnString == "" {
		logger.Logger.Info("REDIS_CONN_STRING not set, Redis features disabled")
		return nil
	}
	opt, err := redis.ParseURL(config.RedisConnString)
	if err != nil {
		return errors.Wrap(err, "parse redis connection string")
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	RDB = client
	logger.Logger.Info("redis client initialized")
	return nil
}

// PushLog appends a serialized log record to the log queue.
func PushLog(ctx context.Context, payload []byte) error {
	if !Enabled() {
		return errors.New("redis is not configured")
	}
	if err := RDB.LPush(ctx, config.LogQueueKey, payload).Err(); err != nil {
		return errors.Wrap(err, "lpush log queue")
	}
	return nil
}

// PopLog blocks up to timeout waiting for the next log record. It returns
// redis.Nil via the wrapped error when the timeout elapses with no message.
func PopLog(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if !Enabled() {
		return nil, errors.New("redis is not configured")
	}
	vals, err := RDB.BRPop(ctx, timeout, config.LogQueueKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "brpop log queue")
	}
	if len(vals) != 2 {
		return nil, errors.Errorf("unexpected brpop reply length %d", len(vals))
	}
	return []byte(vals[1]), nil
}

// RequeueLog puts a failed log record back on the queue tail so it is retried
// after the current backlog.
func RequeueLog(ctx context.Context, payload []byte) error {
	if !Enabled() {
		return errors.New("redis is not configured")
	}
	if err := RDB.RPush(ctx, config.LogQueueKey, payload).Err(); err != nil {
		return errors.Wrap(err, "rpush log queue")
	}
	return nil
}

const thoughtSignatureTTL = 24 * time.Hour

// CacheThoughtSignature stores a Gemini thought signature keyed by tool-call
// id. Failures are logged and swallowed; a lost signature only degrades a
// later multi-turn replay.
func CacheThoughtSignature(ctx context.Context, toolCallID, signature string) {
	if !Enabled() || toolCallID == "" || signature == "" {
		return
	}
	key := "thought_signature:" + toolCallID
	if err := RDB.SetEX(ctx, key, signature, thoughtSignatureTTL).Err(); err != nil {
		logger.Logger.Warn("cache thought signature failed",
			zap.String("tool_call_id", toolCallID), zap.Error(err))
	}
}

// GetThoughtSignature looks up a previously cached thought signature. It
// returns an empty string on miss or Redis failure.
func GetThoughtSignature(ctx context.Context, toolCallID string) string {
	if !Enabled() || toolCallID == "" {
		return ""
	}
	val, err := RDB.Get(ctx, "thought_signature:"+toolCallID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Logger.Warn("get thought signature failed",
				zap.String("tool_call_id", toolCallID), zap.Error(err))
		}
		return ""
	}
	return val
}
