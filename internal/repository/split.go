package repository

import (
	"context"
	"marketplace-settlement/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SplitRepository interface {
	// Upsert inserts the split or refreshes the amounts of the existing row
	// for the same order. Payout fields of an existing row are left alone.
	Upsert(ctx context.Context, tx *gorm.DB, split *model.PaymentSplit) (*model.PaymentSplit, error)
	FindByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.PaymentSplit, error)
	ClaimPayout(ctx context.Context, orderID string) (bool, error)
	SetPayoutResult(ctx context.Context, orderID string, status model.PayoutStatus, reference, payoutErr string) error
	ListRetryableBySeller(ctx context.Context, sellerID string) ([]*model.PaymentSplit, error)
}

type splitRepoImpl struct {
	db *gorm.DB
}

func NewSplitRepository(db *gorm.DB) SplitRepository {
	return &splitRepoImpl{
		db: db,
	}
}

func (r *splitRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *splitRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, split *model.PaymentSplit) (*model.PaymentSplit, error) {
	db := r.conn(tx).WithContext(ctx)

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_amount",
			"platform_amount",
			"seller_amount",
			"platform_paid",
			"platform_reference",
			"updated_at",
		}),
	}).Create(split).Error
	if err != nil {
		return nil, err
	}

	return r.FindByOrderID(ctx, tx, split.OrderID)
}

func (r *splitRepoImpl) FindByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.PaymentSplit, error) {
	var split model.PaymentSplit
	err := r.conn(tx).WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&split).Error
	if err != nil {
		return nil, err
	}

	return &split, nil
}

func (r *splitRepoImpl) ClaimPayout(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.PaymentSplit{}).
		Where("order_id = ? AND payout_status IN ?", orderID, model.PayoutClaimable).
		Updates(map[string]interface{}{
			"payout_status":   model.PayoutStatusProcessing,
			"payout_attempts": gorm.Expr("payout_attempts + 1"),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *splitRepoImpl) SetPayoutResult(ctx context.Context, orderID string, status model.PayoutStatus, reference, payoutErr string) error {
	updates := map[string]interface{}{
		"payout_status": status,
		"seller_paid":   status == model.PayoutStatusPaid || status == model.PayoutStatusNotRequired,
		"payout_error":  payoutErr,
		"updated_at":    time.Now().UTC(),
	}
	if reference != "" {
		updates["seller_reference"] = reference
	}

	result := r.db.WithContext(ctx).Model(&model.PaymentSplit{}).
		Where("order_id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *splitRepoImpl) ListRetryableBySeller(ctx context.Context, sellerID string) ([]*model.PaymentSplit, error) {
	var splits []*model.PaymentSplit
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND payout_status IN ?", sellerID,
			[]model.PayoutStatus{model.PayoutStatusDeferred, model.PayoutStatusFailed}).
		Order("created_at ASC").
		Find(&splits).Error
	if err != nil {
		return nil, err
	}

	return splits, nil
}
