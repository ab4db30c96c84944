package repository

import (
	"context"
	"errors"
	"marketplace-settlement/internal/model"

	"gorm.io/gorm"
)

// ProductRepository is the single place that knows listings live in two
// collections; callers only see model.Listing.
type ProductRepository interface {
	Resolve(ctx context.Context, productID string) (*model.Listing, error)
	ResolveKind(ctx context.Context, productID string, kind model.ProductKind) (*model.Listing, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Resolve(ctx context.Context, productID string) (*model.Listing, error) {
	listing, err := r.ResolveKind(ctx, productID, model.ProductKindSeller)
	if err == nil {
		return listing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return r.ResolveKind(ctx, productID, model.ProductKindPlatform)
}

func (r *productRepoImpl) ResolveKind(ctx context.Context, productID string, kind model.ProductKind) (*model.Listing, error) {
	switch kind {
	case model.ProductKindPlatform:
		var product model.PlatformProduct
		if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
			return nil, err
		}
		return product.Listing(), nil
	default:
		var product model.Product
		if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
			return nil, err
		}
		return product.Listing(), nil
	}
}
