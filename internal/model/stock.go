package model

import (
	"time"
)

// StockRow 库存表
// (boutique_id, product_id) 唯一，首次变动时懒创建，只由预占服务写入
//
// 【注意】预占（扣减）不做下限约束，数量可以为负 —— 超卖场景下负库存
// 作为缺货信号保留；释放/入库则下限截断为 0。这是既有业务行为，勿改。
type StockRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoutiqueID int64     `gorm:"not null;uniqueIndex:ux_stock_boutique_product" json:"boutique_id"`
	ProductID  int64     `gorm:"not null;uniqueIndex:ux_stock_boutique_product" json:"product_id"`
	Quantity   int64     `gorm:"not null;default:0" json:"quantity"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StockRow) TableName() string {
	return "stock_row"
}

// ============================================================================
// 库存流水实体
// ============================================================================

// StockMovement 库存流水表
// 记录每一笔库存变动，是对账和库存重建的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每笔流水的 reason 标签内嵌发起方的幂等键 —— 便于溯源
// 3. 记录变动前后数量 —— 便于校验库存一致性
type StockMovement struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MovementNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"movement_no"` // 流水号（全局唯一）
	BoutiqueID int64     `gorm:"index;not null" json:"boutique_id"`
	ProductID  int64     `gorm:"index;not null" json:"product_id"`
	Delta      int64     `gorm:"not null" json:"delta"`                      // 变动量（入库为正，出库为负）
	QtyBefore  int64     `gorm:"not null" json:"qty_before"`                 // 变动前数量
	QtyAfter   int64     `gorm:"not null" json:"qty_after"`                  // 变动后数量
	Reason     string    `gorm:"type:varchar(128);index;not null" json:"reason"` // 如 ecom_prepare:<orderNo>
	Actor      string    `gorm:"type:varchar(64)" json:"actor"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (StockMovement) TableName() string {
	return "stock_movement"
}

// Reason 标签前缀
const (
	ReasonPrefixReserve = "ecom_prepare"
	ReasonPrefixRelease = "ecom_return"
	ReasonPrefixRestock = "stock_in"
)
