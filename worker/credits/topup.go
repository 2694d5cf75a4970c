package credits

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/shopspring/decimal"

	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/logger"
	"github.com/llmgateway/llmgateway/model"
)

// Charger performs the external payment for one auto-top-up. The billing
// processor integration provides this at startup; without one the loop only
// logs candidates.
type Charger func(org *model.Organization, amount decimal.Decimal) error

var charger Charger

// SetCharger installs the payment hook.
func SetCharger(c Charger) { charger = c }

const topUpInterval = time.Minute

// StartAutoTopUp tops up organizations whose balance fell below their
// threshold. Payment failures back off exponentially per organization.
// backoffState tracks payment failures per organization; skip counts the
// remaining cycles before the next attempt.
type backoffState struct {
	consecutive int
	skip        int
}

func StartAutoTopUp(ctx context.Context) {
	ticker := time.NewTicker(topUpInterval)
	defer ticker.Stop()
	failures := map[string]*backoffState{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runAutoTopUp(failures); err != nil {
				logger.Logger.Error("auto top-up run failed", zap.Error(err))
			}
		}
	}
}

func runAutoTopUp(failures map[string]*backoffState) error {
	acquired, err := model.AcquireLock(model.LockAutoTopUp)
	if err != nil {
		return errors.Wrap(err, "acquire top-up lock")
	}
	if !acquired {
		return nil
	}
	defer model.ReleaseLock(model.LockAutoTopUp)

	orgs, err := model.ListAutoTopUpCandidates()
	if err != nil {
		return err
	}
	for _, org := range orgs {
		if charger == nil {
			logger.Logger.Info("auto top-up candidate without payment hook",
				zap.String("organization", org.ID))
			continue
		}
		if s := failures[org.ID]; s != nil && s.skip > 0 {
			s.skip--
			continue
		}
		if err := charger(org, org.AutoTopUpAmount); err != nil {
			s := failures[org.ID]
			if s == nil {
				s = &backoffState{}
				failures[org.ID] = s
			}
			s.consecutive++
			s.skip = 1 << s.consecutive
			logger.Logger.Error("auto top-up charge failed",
				zap.String("organization", org.ID),
				zap.Int("consecutive_failures", s.consecutive), zap.Error(err))
			continue
		}
		delete(failures, org.ID)
		if err := model.TopUpOrganization(org.ID, org.AutoTopUpAmount); err != nil {
			return err
		}
		logger.Logger.Info("auto top-up applied",
			zap.String("organization", org.ID),
			zap.String("amount", org.AutoTopUpAmount.String()))
	}
	return nil
}

// StartRetentionCleanup nulls verbose log columns past the retention window.
func StartRetentionCleanup(ctx context.Context) {
	if !config.EnableDataRetentionClean {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runRetentionCleanup(); err != nil {
				logger.Logger.Error("retention cleanup failed", zap.Error(err))
			}
		}
	}
}

func runRetentionCleanup() error {
	acquired, err := model.AcquireLock(model.LockDataRetention)
	if err != nil {
		return errors.Wrap(err, "acquire retention lock")
	}
	if !acquired {
		return nil
	}
	defer model.ReleaseLock(model.LockDataRetention)

	cutoff := time.Now().UTC().AddDate(0, 0, -config.DataRetentionDays)
	affected, err := model.CleanupRetainedContent(cutoff)
	if err != nil {
		return err
	}
	if affected > 0 {
		logger.Logger.Info("retention cleanup", zap.Int64("rows", affected))
	}
	return nil
}
