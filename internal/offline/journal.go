package offline

import (
	"context"
	"log"
)

// ErrorJournal 同步失败日志，有界、只追加
// 给操作员看"卡住的项为什么不走"，同步驱动不读它做任何决策
type ErrorJournal struct {
	store Store
	cap   int
}

func NewErrorJournal(store Store, cap int) *ErrorJournal {
	if cap <= 0 {
		cap = 500
	}
	return &ErrorJournal{store: store, cap: cap}
}

// Append 追加一条失败记录，超出上限时淘汰最旧的
func (j *ErrorJournal) Append(ctx context.Context, key, errMsg string, retryable bool) error {
	entry := &JournalEntry{
		IdempotencyKey: key,
		ErrorMessage:   errMsg,
		Retryable:      retryable,
	}
	if err := j.store.AppendJournal(ctx, entry); err != nil {
		return err
	}

	trimmed, err := j.store.TrimJournal(ctx, j.cap)
	if err != nil {
		log.Printf("[Journal] 裁剪失败: %v", err)
		return nil // 裁剪失败不影响追加本身
	}
	if trimmed > 0 {
		log.Printf("[Journal] 超出上限，已淘汰 %d 条最旧记录", trimmed)
	}
	return nil
}

// List 最新优先返回至多 limit 条
func (j *ErrorJournal) List(ctx context.Context, limit int) ([]*JournalEntry, error) {
	if limit <= 0 || limit > j.cap {
		limit = j.cap
	}
	return j.store.ListJournal(ctx, limit)
}

// Clear 操作员清空日志
func (j *ErrorJournal) Clear(ctx context.Context) error {
	return j.store.ClearJournal(ctx)
}

// Trim 按上限裁剪（后台任务周期调用）
func (j *ErrorJournal) Trim(ctx context.Context) (int64, error) {
	return j.store.TrimJournal(ctx, j.cap)
}
