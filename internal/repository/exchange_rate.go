package repository

import (
	"context"
	"errors"
	"marketplace-settlement/internal/model"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ExchangeRateRepository interface {
	// FindRate returns the stored base->quote rate and false when none is stored.
	FindRate(ctx context.Context, base, quote string) (decimal.Decimal, bool, error)
}

type exchangeRateRepoImpl struct {
	db *gorm.DB
}

func NewExchangeRateRepository(db *gorm.DB) ExchangeRateRepository {
	return &exchangeRateRepoImpl{
		db: db,
	}
}

func (r *exchangeRateRepoImpl) FindRate(ctx context.Context, base, quote string) (decimal.Decimal, bool, error) {
	var rate model.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ?", strings.ToUpper(base), strings.ToUpper(quote)).
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	return rate.Rate, true, nil
}
