package model

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/llmgateway/llmgateway/common/logger"
)

// Lock names recognized by the workers.
const (
	LockCreditProcessing = "credit_processing"
	LockAutoTopUp        = "auto_top_up"
	LockDataRetention    = "data_retention"
)

// LockExpiry is how long a held lock is honored before another worker may
// reclaim it.
const LockExpiry = 5 * time.Minute

// Lock is one named row in the lock table. The unique key on Key makes a
// concurrent INSERT fail, which acquirers read as "not acquired".
type Lock struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AcquireLock deletes an expired holder and inserts a fresh row. Returns
// false when another live holder owns the key.
func AcquireLock(key string) (bool, error) {
	acquired := false
	err := DB.Transaction(func(tx *gorm.DB) error {
		// Map conditions so the dialect quotes "key", a reserved word on MySQL.
		if err := tx.Where(map[string]any{"key": key}).
			Where("updated_at < ?", time.Now().Add(-LockExpiry)).
			Delete(&Lock{}).Error; err != nil {
			return errors.Wrap(err, "reclaim expired lock")
		}
		if err := tx.Create(&Lock{Key: key, UpdatedAt: time.Now()}).Error; err != nil {
			if isDuplicateKeyError(err) {
				return nil
			}
			return errors.Wrap(err, "insert lock row")
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "acquire lock %s", key)
	}
	return acquired, nil
}

// ReleaseLock drops the holder's row. Safe to call when not held.
func ReleaseLock(key string) {
	if err := DB.Where(map[string]any{"key": key}).Delete(&Lock{}).Error; err != nil {
		logger.Logger.Error("release lock", zap.String("key", key), zap.Error(err))
	}
}

// isDuplicateKeyError recognizes unique-constraint violations across the
// supported dialects. Postgres reports SQLSTATE 23505.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint")
}
