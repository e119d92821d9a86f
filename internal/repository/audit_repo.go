package repository

import (
	"context"
	"errors"

	"stocksync/internal/model"

	"gorm.io/gorm"
)

var (
	ErrDuplicateAudit = errors.New("重复的幂等记录")
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create 写入幂等门卫记录
// (action, resource_id) 唯一索引冲突说明同一操作已被并发请求应用过
func (r *AuditRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.AuditEntry) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(entry).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAudit
	}
	return err
}

// Exists 幂等预检查：该 (action, resource_id) 是否已有门卫记录
func (r *AuditRepository) Exists(ctx context.Context, action, resourceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AuditEntry{}).
		Where("action = ? AND resource_id = ?", action, resourceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
