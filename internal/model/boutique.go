package model

import (
	"time"
)

// Boutique 门店表
// 多租户零售系统中的一个门店，库存按门店维度隔离
type Boutique struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  string    `gorm:"type:varchar(64);index;not null" json:"tenant_id"` // 租户ID
	Code      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"type:varchar(128);index;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Boutique) TableName() string {
	return "boutique"
}
