package model

import (
	"time"
)

// 幂等门卫动作常量
const (
	AuditActionReserve = "inventory.reserve.shared"
	AuditActionRelease = "inventory.release.shared"
	AuditActionRestock = "inventory.restock.shared"
)

// AuditEntry 审计表
// (action, resource_id) 上的唯一索引是整个幂等协议的最终防线：
// 预检查漏掉的并发重复请求会在事务提交时撞索引回滚，而不是二次扣减
type AuditEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Action     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_audit_action_resource" json:"action"`
	ResourceID string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_audit_action_resource" json:"resource_id"`
	Actor      string    `gorm:"type:varchar(64)" json:"actor"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditEntry) TableName() string {
	return "audit_entry"
}
