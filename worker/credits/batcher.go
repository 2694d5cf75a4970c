// Package credits settles unprocessed request logs against organization
// balances and API-key usage counters.
package credits

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/logger"
	"github.com/llmgateway/llmgateway/model"
)

// Start runs the credit batch on its interval until the context is canceled.
func Start(ctx context.Context) {
	ticker := time.NewTicker(config.CreditBatchInterval)
	defer ticker.Stop()
	logger.Logger.Info("credit batcher started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := RunBatch(); err != nil {
				logger.Logger.Error("credit batch failed", zap.Error(err))
			}
		}
	}
}

// RunBatch processes one batch under the distributed lock. Another live
// holder makes this a no-op.
func RunBatch() error {
	acquired, err := model.AcquireLock(model.LockCreditProcessing)
	if err != nil {
		return errors.Wrap(err, "acquire credit lock")
	}
	if !acquired {
		return nil
	}
	defer model.ReleaseLock(model.LockCreditProcessing)

	return model.DB.Transaction(processBatch)
}

func processBatch(tx *gorm.DB) error {
	logs, err := model.FetchUnprocessedLogs(tx, config.CreditBatchSize)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	byokFee := decimal.NewFromFloat(config.ByokFeePercentage)
	orgDeductions := map[string]decimal.Decimal{}
	keyUsage := map[string]decimal.Decimal{}
	ids := make([]int64, 0, len(logs))

	for _, l := range logs {
		ids = append(ids, l.ID)
		if l.Cached || l.Cost.Sign() <= 0 {
			continue
		}
		if l.ApiKeyID != "" {
			keyUsage[l.ApiKeyID] = keyUsage[l.ApiKeyID].Add(l.Cost)
		}
		switch l.UsedMode {
		case model.ModeCredits:
			orgDeductions[l.OrganizationID] = orgDeductions[l.OrganizationID].Add(l.Cost)
		case model.ModeAPIKeys:
			fee := l.Cost.Mul(byokFee)
			orgDeductions[l.OrganizationID] = orgDeductions[l.OrganizationID].
				Add(fee).Add(l.DataStorageCost)
			if err := model.SetLogServiceFee(tx, l.ID, fee); err != nil {
				return err
			}
		}
	}

	for keyID, usage := range keyUsage {
		if err := model.AddApiKeyUsage(tx, keyID, usage); err != nil {
			return err
		}
	}

	for orgID, deduction := range orgDeductions {
		if deduction.Sign() <= 0 {
			continue
		}
		if err := model.DeductOrganizationCredits(tx, orgID, deduction); err != nil {
			return err
		}
		var org model.Organization
		if err := tx.Select("referred_by").First(&org, "id = ?", orgID).Error; err != nil {
			return errors.Wrapf(err, "load organization %s", orgID)
		}
		if org.ReferredBy != "" {
			share := deduction.Mul(decimal.NewFromFloat(config.ReferralSharePercentage))
			if err := model.CreditReferrer(tx, org.ReferredBy, share); err != nil {
				return err
			}
		}
	}

	return model.MarkLogsProcessed(tx, ids, time.Now().UTC())
}
