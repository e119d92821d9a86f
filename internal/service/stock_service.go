package service

import (
	"context"
	"errors"
	"fmt"

	"stocksync/internal/model"
	"stocksync/internal/repository"

	"gorm.io/gorm"
)

// StockService 库存只读查询，供管理端展示使用，不做任何写入
type StockService struct {
	db           *gorm.DB
	boutiqueRepo *repository.BoutiqueRepository
	productRepo  *repository.ProductRepository
	stockRepo    *repository.StockRepository
	movementRepo *repository.MovementRepository
}

func NewStockService(db *gorm.DB) *StockService {
	return &StockService{
		db:           db,
		boutiqueRepo: repository.NewBoutiqueRepository(db),
		productRepo:  repository.NewProductRepository(db),
		stockRepo:    repository.NewStockRepository(db),
		movementRepo: repository.NewMovementRepository(db),
	}
}

// GetQuantity 查询某门店某 SKU 的当前数量，行不存在返回 0
func (s *StockService) GetQuantity(ctx context.Context, boutiqueHint, sku string) (int64, error) {
	boutique, product, err := s.resolve(ctx, boutiqueHint, sku)
	if err != nil {
		return 0, err
	}
	return s.stockRepo.GetQuantity(ctx, nil, boutique.ID, product.ID)
}

// ListMovements 分页查询库存流水
func (s *StockService) ListMovements(ctx context.Context, boutiqueHint, sku string, page, pageSize int) ([]*model.StockMovement, int64, error) {
	boutique, product, err := s.resolve(ctx, boutiqueHint, sku)
	if err != nil {
		return nil, 0, err
	}
	return s.movementRepo.ListByProduct(ctx, boutique.ID, product.ID, page, pageSize)
}

func (s *StockService) resolve(ctx context.Context, boutiqueHint, sku string) (*model.Boutique, *model.Product, error) {
	boutique, err := s.boutiqueRepo.GetByHint(ctx, boutiqueHint)
	if err != nil {
		return nil, nil, fmt.Errorf("查询门店失败: %w", err)
	}
	if boutique == nil {
		return nil, nil, repository.ErrBoutiqueNotFound
	}

	product, err := s.productRepo.GetBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, repository.ErrSKUNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("查询商品失败: %w", err)
	}
	return boutique, product, nil
}
