package repository

import (
	"context"
	"marketplace-settlement/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayoutProfileRepository interface {
	Get(ctx context.Context, sellerID string) (*model.SellerPayoutProfile, error)
	Upsert(ctx context.Context, profile *model.SellerPayoutProfile) error
	SetRecipientCode(ctx context.Context, sellerID, recipientCode string) error
	Delete(ctx context.Context, sellerID string) error
}

type payoutProfileRepoImpl struct {
	db *gorm.DB
}

func NewPayoutProfileRepository(db *gorm.DB) PayoutProfileRepository {
	return &payoutProfileRepoImpl{
		db: db,
	}
}

func (r *payoutProfileRepoImpl) Get(ctx context.Context, sellerID string) (*model.SellerPayoutProfile, error) {
	var profile model.SellerPayoutProfile
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		First(&profile).Error
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// Upsert replaces the banking fields wholesale. A new destination always
// drops the cached transfer recipient.
func (r *payoutProfileRepoImpl) Upsert(ctx context.Context, profile *model.SellerPayoutProfile) error {
	profile.RecipientCode = ""
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"bank_name":       profile.BankName,
			"bank_code":       profile.BankCode,
			"account_number":  profile.AccountNumber,
			"account_name":    profile.AccountName,
			"subaccount_code": profile.SubaccountCode,
			"recipient_code":  "",
			"verified_at":     profile.VerifiedAt,
			"updated_at":      time.Now().UTC(),
		}),
	}).Create(profile).Error
}

func (r *payoutProfileRepoImpl) SetRecipientCode(ctx context.Context, sellerID, recipientCode string) error {
	return r.db.WithContext(ctx).Model(&model.SellerPayoutProfile{}).
		Where("seller_id = ?", sellerID).
		Updates(map[string]interface{}{
			"recipient_code": recipientCode,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *payoutProfileRepoImpl) Delete(ctx context.Context, sellerID string) error {
	result := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Delete(&model.SellerPayoutProfile{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
