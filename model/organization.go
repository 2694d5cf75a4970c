package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/llmgateway/llmgateway/common"
)

// Retention levels controlling what the log consumer persists.
const (
	RetentionNone   = "none"
	RetentionRetain = "retain"
)

// Organization is the billing account. Credits are decimals; dev-plan
// credits deplete before regular credits.
type Organization struct {
	ID   string `gorm:"primaryKey;size:64" json:"id"`
	Name string `gorm:"size:128" json:"name"`

	Credits             decimal.Decimal `gorm:"type:decimal(30,15)" json:"credits"`
	DevPlanCreditsLimit decimal.Decimal `gorm:"type:decimal(30,15)" json:"devPlanCreditsLimit"`
	DevPlanCreditsUsed  decimal.Decimal `gorm:"type:decimal(30,15)" json:"devPlanCreditsUsed"`

	RetentionLevel   string          `gorm:"size:16;default:retain" json:"retentionLevel"`
	ReferredBy       string          `gorm:"size:64" json:"referredBy,omitempty"`
	ReferralEarnings decimal.Decimal `gorm:"type:decimal(30,15)" json:"referralEarnings"`

	AutoTopUpEnabled   bool            `json:"autoTopUpEnabled"`
	AutoTopUpThreshold decimal.Decimal `gorm:"type:decimal(30,15)" json:"autoTopUpThreshold"`
	AutoTopUpAmount    decimal.Decimal `gorm:"type:decimal(30,15)" json:"autoTopUpAmount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApiKey is a gateway credential. Usage accumulates the full cost of every
// request billed through the key, regardless of mode.
type ApiKey struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	Token          string          `gorm:"size:128;uniqueIndex" json:"-"`
	OrganizationID string          `gorm:"size:64;index" json:"organizationId"`
	ProjectID      string          `gorm:"size:64;index" json:"projectId"`
	Name           string          `gorm:"size:128" json:"name"`
	Mode           string          `gorm:"size:16;default:hybrid" json:"mode"`
	Usage          decimal.Decimal `gorm:"type:decimal(30,15)" json:"usage"`
	Disabled       bool            `json:"disabled"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// GetApiKeyByToken resolves a bearer token to its key record.
func GetApiKeyByToken(token string) (*ApiKey, error) {
	var key ApiKey
	if err := DB.Where(map[string]any{"token": token}).First(&key).Error; err != nil {
		return nil, errors.Wrapf(err, "get api key by token")
	}
	return &key, nil
}

// GetOrganization loads one organization by id.
func GetOrganization(id string) (*Organization, error) {
	var org Organization
	if err := DB.First(&org, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get organization %s", id)
	}
	return &org, nil
}

// GetRetentionLevels returns the retention level per organization id. Missing
// organizations are absent from the map.
func GetRetentionLevels(ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	var rows []Organization
	if err := DB.Select("id", "retention_level").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "get retention levels")
	}
	levels := make(map[string]string, len(rows))
	for _, row := range rows {
		levels[row.ID] = row.RetentionLevel
	}
	return levels, nil
}

// DeductOrganizationCredits charges an organization, draining dev-plan
// credits before regular credits. Must run inside the batcher's transaction.
func DeductOrganizationCredits(tx *gorm.DB, orgID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}
	query := tx.Model(&Organization{}).Where("id = ?", orgID)
	if common.UsingPostgreSQL {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var org Organization
	if err := query.First(&org).Error; err != nil {
		return errors.Wrapf(err, "lock organization %s", orgID)
	}

	devRemaining := org.DevPlanCreditsLimit.Sub(org.DevPlanCreditsUsed)
	if devRemaining.Sign() < 0 {
		devRemaining = decimal.Zero
	}
	devPortion := decimal.Min(devRemaining, amount)
	regularPortion := amount.Sub(devPortion)

	updates := map[string]any{}
	if devPortion.Sign() > 0 {
		updates["dev_plan_credits_used"] = gorm.Expr("dev_plan_credits_used + ?", devPortion)
	}
	if regularPortion.Sign() > 0 {
		updates["credits"] = gorm.Expr("credits - ?", regularPortion)
	}
	if len(updates) == 0 {
		return nil
	}
	err := tx.Model(&Organization{}).Where("id = ?", orgID).Updates(updates).Error
	return errors.Wrapf(err, "deduct credits from organization %s", orgID)
}

// CreditReferrer pays a referral share into the referrer's balance.
func CreditReferrer(tx *gorm.DB, referrerID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}
	err := tx.Model(&Organization{}).Where("id = ?", referrerID).Updates(map[string]any{
		"credits":           gorm.Expr("credits + ?", amount),
		"referral_earnings": gorm.Expr("referral_earnings + ?", amount),
	}).Error
	return errors.Wrapf(err, "credit referrer %s", referrerID)
}

// AddApiKeyUsage accumulates cost onto a key's running usage.
func AddApiKeyUsage(tx *gorm.DB, keyID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}
	err := tx.Model(&ApiKey{}).Where("id = ?", keyID).
		Update("usage", gorm.Expr("usage + ?", amount)).Error
	return errors.Wrapf(err, "add usage to api key %s", keyID)
}

// TopUpOrganization adds purchased credits after a successful charge.
func TopUpOrganization(orgID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}
	err := DB.Model(&Organization{}).Where("id = ?", orgID).
		Update("credits", gorm.Expr("credits + ?", amount)).Error
	return errors.Wrapf(err, "top up organization %s", orgID)
}

// ListAutoTopUpCandidates returns organizations whose balance fell below
// their configured threshold.
func ListAutoTopUpCandidates() ([]*Organization, error) {
	var orgs []*Organization
	err := DB.Where("auto_top_up_enabled = ?", true).
		Where("credits < auto_top_up_threshold").
		Find(&orgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list auto top-up candidates")
	}
	return orgs, nil
}
