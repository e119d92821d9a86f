package model

import (
	"time"
)

// Product 商品表
// SKU 全局唯一，同步请求中的商品一律按 SKU 解析
type Product struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU            string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"sku"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	UnitPriceCents int64     `gorm:"not null;default:0" json:"unit_price_cents"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}
