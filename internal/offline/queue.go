package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"stocksync/internal/model"
	"stocksync/pkg/idgen"
)

// DurableQueue 离线写请求的持久化队列
// 直连写入失败的销售/收货/退货操作先落到这里，等同步驱动冲账
type DurableQueue struct {
	store Store
	now   func() time.Time
}

func NewDurableQueue(store Store) *DurableQueue {
	return &DurableQueue{
		store: store,
		now:   time.Now,
	}
}

// Enqueue 入队一条待同步操作，返回新生成的幂等键
// 幂等键在这里生成一次，之后所有重试都复用它；
// 调用方把返回的键展示给用户（"已离线保存为 X"）
func (q *DurableQueue) Enqueue(ctx context.Context, kind string, payload interface{}) (string, error) {
	if !model.ValidKinds[kind] {
		return "", fmt.Errorf("未知的操作类型: %s", kind)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化载荷失败: %w", err)
	}

	key := idgen.GenerateIdempotencyKey()
	item := &QueueItem{
		IdempotencyKey: key,
		Kind:           kind,
		Payload:        string(payloadBytes),
		Attempts:       0,
		NextAttemptAt:  q.now(),
	}

	if err := q.store.SaveItem(ctx, item); err != nil {
		return "", fmt.Errorf("持久化队列项失败: %w", err)
	}

	log.Printf("[Queue] 已离线入队: key=%s, kind=%s", key, kind)
	return key, nil
}

// ListPending 列出待同步项，kind 为空表示全部
func (q *DurableQueue) ListPending(ctx context.Context, kind string) ([]*QueueItem, error) {
	return q.store.ListItems(ctx, kind)
}

// ListDue 列出到期可重试的项（next_attempt_at <= now）
func (q *DurableQueue) ListDue(ctx context.Context, kind string) ([]*QueueItem, error) {
	return q.store.ListDueItems(ctx, kind, q.now())
}

// Get 按幂等键取单项，不存在返回 nil
func (q *DurableQueue) Get(ctx context.Context, key string) (*QueueItem, error) {
	return q.store.GetItem(ctx, key)
}

// Remove 删除单项；不存在时为空操作（幂等删除）
func (q *DurableQueue) Remove(ctx context.Context, key string) error {
	return q.store.DeleteItem(ctx, key)
}

// UpdateRetryMeta 更新重试元数据；项已被并发删除时为空操作
func (q *DurableQueue) UpdateRetryMeta(ctx context.Context, key string, attempts int, nextAttemptAt time.Time) error {
	return q.store.UpdateItemRetryMeta(ctx, key, attempts, nextAttemptAt)
}

// CountPending 按类型统计待同步数量（界面角标的数据来源）
func (q *DurableQueue) CountPending(ctx context.Context) (map[string]int64, error) {
	return q.store.CountItems(ctx)
}
