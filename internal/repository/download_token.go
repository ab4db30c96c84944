package repository

import (
	"context"
	"marketplace-settlement/internal/model"
	"time"

	"gorm.io/gorm"
)

type DownloadTokenRepository interface {
	Create(ctx context.Context, token *model.DownloadToken) error
	Find(ctx context.Context, token string) (*model.DownloadToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type downloadTokenRepoImpl struct {
	db *gorm.DB
}

func NewDownloadTokenRepository(db *gorm.DB) DownloadTokenRepository {
	return &downloadTokenRepoImpl{
		db: db,
	}
}

func (r *downloadTokenRepoImpl) Create(ctx context.Context, token *model.DownloadToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *downloadTokenRepoImpl) Find(ctx context.Context, token string) (*model.DownloadToken, error) {
	var t model.DownloadToken
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&t).Error
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *downloadTokenRepoImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.DownloadToken{})

	return result.RowsAffected, result.Error
}
