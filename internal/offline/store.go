package offline

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// QueueItem 离线队列中的一条待同步写请求
//
// 【不变量】IdempotencyKey 入队时生成一次，跨重试、跨进程重启不变 ——
// 服务端靠它识别重放，重新生成等于制造重复扣减
type QueueItem struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IdempotencyKey string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`
	Kind           string    `gorm:"type:varchar(20);index;not null" json:"kind"`
	Payload        string    `gorm:"type:text;not null" json:"payload"` // 类型相关的 JSON 载荷
	Attempts       int       `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time `gorm:"index;not null" json:"next_attempt_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (QueueItem) TableName() string {
	return "queue_item"
}

// JournalEntry 同步失败日志
// 只追加、有界、纯诊断用途 —— 同步驱动的任何决策都不读它
type JournalEntry struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IdempotencyKey string    `gorm:"type:varchar(64);index;not null" json:"idempotency_key"`
	ErrorMessage   string    `gorm:"type:text;not null" json:"error_message"`
	Retryable      bool      `gorm:"not null;default:true" json:"retryable"`
	OccurredAt     time.Time `gorm:"autoCreateTime;index" json:"occurred_at"`
}

func (JournalEntry) TableName() string {
	return "journal_entry"
}

// Store 本地持久化端口
// 队列组件不绑定具体存储技术，任何提供持久写的键值实现都能满足
type Store interface {
	SaveItem(ctx context.Context, item *QueueItem) error
	GetItem(ctx context.Context, key string) (*QueueItem, error)
	ListItems(ctx context.Context, kind string) ([]*QueueItem, error)
	ListDueItems(ctx context.Context, kind string, now time.Time) ([]*QueueItem, error)
	DeleteItem(ctx context.Context, key string) error
	UpdateItemRetryMeta(ctx context.Context, key string, attempts int, nextAttemptAt time.Time) error
	CountItems(ctx context.Context) (map[string]int64, error)

	AppendJournal(ctx context.Context, entry *JournalEntry) error
	ListJournal(ctx context.Context, limit int) ([]*JournalEntry, error)
	ClearJournal(ctx context.Context) error
	TrimJournal(ctx context.Context, cap int) (int64, error)
}

// GormStore SQLite 文件实现，客户端进程私有，重启后状态不丢
type GormStore struct {
	db *gorm.DB
}

// OpenStore 打开（或创建）本地库并迁移表结构
func OpenStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&QueueItem{}, &JournalEntry{}); err != nil {
		return nil, err
	}

	log.Printf("[OfflineStore] 本地库已打开: %s", path)
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveItem(ctx context.Context, item *QueueItem) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *GormStore) GetItem(ctx context.Context, key string) (*QueueItem, error) {
	var item QueueItem
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *GormStore) ListItems(ctx context.Context, kind string) ([]*QueueItem, error) {
	var items []*QueueItem
	query := s.db.WithContext(ctx).Order("id ASC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	err := query.Find(&items).Error
	return items, err
}

func (s *GormStore) ListDueItems(ctx context.Context, kind string, now time.Time) ([]*QueueItem, error) {
	var items []*QueueItem
	query := s.db.WithContext(ctx).
		Where("next_attempt_at <= ?", now).
		Order("id ASC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	err := query.Find(&items).Error
	return items, err
}

// DeleteItem 幂等删除：目标不存在时静默成功
func (s *GormStore) DeleteItem(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Delete(&QueueItem{}).Error
}

// UpdateItemRetryMeta 存在才更新：与并发删除竞态时安全退化为空操作
func (s *GormStore) UpdateItemRetryMeta(ctx context.Context, key string, attempts int, nextAttemptAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&QueueItem{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
		}).Error
}

func (s *GormStore) CountItems(ctx context.Context) (map[string]int64, error) {
	type kindCount struct {
		Kind  string
		Count int64
	}
	var rows []kindCount
	err := s.db.WithContext(ctx).
		Model(&QueueItem{}).
		Select("kind, count(*) as count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}

func (s *GormStore) AppendJournal(ctx context.Context, entry *JournalEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) ListJournal(ctx context.Context, limit int) ([]*JournalEntry, error) {
	var entries []*JournalEntry
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) ClearJournal(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&JournalEntry{}).Error
}

// TrimJournal 超过上限时删最旧的，返回删除条数
func (s *GormStore) TrimJournal(ctx context.Context, cap int) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&JournalEntry{}).Count(&total).Error; err != nil {
		return 0, err
	}
	excess := total - int64(cap)
	if excess <= 0 {
		return 0, nil
	}

	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&JournalEntry{}).
		Order("id ASC").
		Limit(int(excess)).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&JournalEntry{})
	return result.RowsAffected, result.Error
}
