package repository

import (
	"context"
	"errors"

	"stocksync/internal/model"

	"gorm.io/gorm"
)

var (
	ErrBoutiqueNotFound = errors.New("门店不存在")
)

type BoutiqueRepository struct {
	db *gorm.DB
}

func NewBoutiqueRepository(db *gorm.DB) *BoutiqueRepository {
	return &BoutiqueRepository{db: db}
}

func (r *BoutiqueRepository) Create(ctx context.Context, boutique *model.Boutique) error {
	return r.db.WithContext(ctx).Create(boutique).Error
}

// GetByHint 按提示解析门店：先按 code 精确匹配，再按数字 ID
func (r *BoutiqueRepository) GetByHint(ctx context.Context, hint string) (*model.Boutique, error) {
	var boutique model.Boutique
	err := r.db.WithContext(ctx).
		Where("code = ? OR id = ?", hint, hint).
		First(&boutique).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &boutique, nil
}

// GetDefault 兜底门店：按名称字典序取第一家
// 提示无法解析时的确定性回退，保证重放请求落在同一家门店
func (r *BoutiqueRepository) GetDefault(ctx context.Context) (*model.Boutique, error) {
	var boutique model.Boutique
	err := r.db.WithContext(ctx).
		Order("name ASC").
		First(&boutique).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoutiqueNotFound
		}
		return nil, err
	}
	return &boutique, nil
}
