package repository

import (
	"context"
	"errors"

	"stocksync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

// GetQuantity 读取当前库存数量，行不存在视为 0
func (r *StockRepository) GetQuantity(ctx context.Context, tx *gorm.DB, boutiqueID, productID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var row model.StockRow
	err := tx.WithContext(ctx).
		Where("boutique_id = ? AND product_id = ?", boutiqueID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Quantity, nil
}

// Upsert 库存行懒创建：不存在则插入，存在则覆盖数量
func (r *StockRepository) Upsert(ctx context.Context, tx *gorm.DB, boutiqueID, productID, quantity int64) error {
	if tx == nil {
		tx = r.db
	}
	row := &model.StockRow{
		BoutiqueID: boutiqueID,
		ProductID:  productID,
		Quantity:   quantity,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "boutique_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"quantity": quantity}),
		}).
		Create(row).Error
}

func (r *StockRepository) Get(ctx context.Context, boutiqueID, productID int64) (*model.StockRow, error) {
	var row model.StockRow
	err := r.db.WithContext(ctx).
		Where("boutique_id = ? AND product_id = ?", boutiqueID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *StockRepository) ListByBoutique(ctx context.Context, boutiqueID int64) ([]*model.StockRow, error) {
	var rows []*model.StockRow
	err := r.db.WithContext(ctx).
		Where("boutique_id = ?", boutiqueID).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// ============================================================
// 库存流水
// ============================================================

type MovementRepository struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

func (r *MovementRepository) Create(ctx context.Context, tx *gorm.DB, movement *model.StockMovement) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(movement).Error
}

func (r *MovementRepository) ListByReason(ctx context.Context, reason string) ([]*model.StockMovement, error) {
	var movements []*model.StockMovement
	err := r.db.WithContext(ctx).
		Where("reason = ?", reason).
		Order("id ASC").
		Find(&movements).Error
	return movements, err
}

func (r *MovementRepository) ListByProduct(ctx context.Context, boutiqueID, productID int64, page, pageSize int) ([]*model.StockMovement, int64, error) {
	var movements []*model.StockMovement
	var total int64

	query := r.db.WithContext(ctx).Model(&model.StockMovement{}).
		Where("boutique_id = ? AND product_id = ?", boutiqueID, productID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&movements).Error

	return movements, total, err
}
