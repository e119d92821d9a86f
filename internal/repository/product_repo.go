package repository

import (
	"context"
	"errors"
	"fmt"

	"stocksync/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSKUNotFound = errors.New("SKU不存在")
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSKUNotFound, sku)
		}
		return nil, err
	}
	return &product, nil
}

// ResolveSKUs 批量解析 SKU，任一解析失败则整体失败（全有或全无）
func (r *ProductRepository) ResolveSKUs(ctx context.Context, skus []string) (map[string]*model.Product, error) {
	resolved := make(map[string]*model.Product, len(skus))
	for _, sku := range skus {
		if _, ok := resolved[sku]; ok {
			continue
		}
		product, err := r.GetBySKU(ctx, sku)
		if err != nil {
			return nil, err
		}
		resolved[sku] = product
	}
	return resolved, nil
}
