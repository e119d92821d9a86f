package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"stocksync/internal/model"
)

// Syncer 同步驱动
// 把队列里的待同步项按触发时机（启动、网络恢复、周期、手动）
// 冲到远端。每个操作类型同一时刻只允许一趟冲账在跑，
// 不同类型互不阻塞。一趟冲账跑到底，不在中途取消。
type Syncer struct {
	queue    *DurableQueue
	journal  *ErrorJournal
	remote   Remote
	policy   BackoffPolicy
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool

	stopCh chan struct{}
}

func NewSyncer(queue *DurableQueue, journal *ErrorJournal, remote Remote, policy BackoffPolicy, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		queue:    queue,
		journal:  journal,
		remote:   remote,
		policy:   policy,
		interval: interval,
		now:      time.Now,
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Start 启动即冲一次账，之后按周期触发
func (s *Syncer) Start(ctx context.Context) {
	log.Println("[Syncer] 同步驱动启动")

	s.FlushAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Syncer] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[Syncer] 任务停止")
			return
		case <-ticker.C:
			s.FlushAll(ctx)
		}
	}
}

func (s *Syncer) Stop() {
	close(s.stopCh)
}

// OnOnline 网络恢复事件：立即对所有类型冲一次账
func (s *Syncer) OnOnline(ctx context.Context) {
	log.Println("[Syncer] 网络恢复，触发冲账")
	s.FlushAll(ctx)
}

// FlushAll 对所有操作类型各冲一趟
func (s *Syncer) FlushAll(ctx context.Context) {
	for _, kind := range []string{model.KindSale, model.KindReceiving, model.KindReturn} {
		s.Flush(ctx, kind)
	}
}

// Flush 对单一类型冲一趟账
// 该类型已有冲账在跑时直接返回（重入触发为空操作）；
// 返回成功同步和失败的条数
func (s *Syncer) Flush(ctx context.Context, kind string) (synced, failed int) {
	s.mu.Lock()
	if s.inFlight[kind] {
		s.mu.Unlock()
		return 0, 0
	}
	s.inFlight[kind] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, kind)
		s.mu.Unlock()
	}()

	items, err := s.queue.ListDue(ctx, kind)
	if err != nil {
		log.Printf("[Syncer] 查询待同步项失败: kind=%s, err=%v", kind, err)
		return 0, 0
	}
	if len(items) == 0 {
		return 0, 0
	}

	log.Printf("[Syncer] 开始冲账: kind=%s, 待同步 %d 条", kind, len(items))

	for _, item := range items {
		if s.attempt(ctx, item) {
			synced++
		} else {
			failed++
		}
	}

	log.Printf("[Syncer] 冲账结束: kind=%s, 成功=%d, 失败=%d", kind, synced, failed)
	return synced, failed
}

// RetryItem 操作员手动重试单项，无视 next_attempt_at 直接尝试
func (s *Syncer) RetryItem(ctx context.Context, key string) error {
	item, err := s.queue.Get(ctx, key)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("队列项不存在: %s", key)
	}
	if s.attempt(ctx, item) {
		return nil
	}
	return fmt.Errorf("重试失败: %s", key)
}

// attempt 尝试同步一条；成功则出队，失败则更新重试元数据并记日志
func (s *Syncer) attempt(ctx context.Context, item *QueueItem) bool {
	err := s.remote.Submit(ctx, item)

	// 授权过期单独处理：刷新会话成功后立即重试一次，
	// 刷新失败则降级为普通失败走退避
	var rerr *RemoteError
	if errors.As(err, &rerr) && rerr.Unauthorized {
		if refreshErr := s.remote.RefreshSession(ctx); refreshErr == nil {
			err = s.remote.Submit(ctx, item)
		}
	}

	if err == nil {
		if removeErr := s.queue.Remove(ctx, item.IdempotencyKey); removeErr != nil {
			log.Printf("[Syncer] 出队失败: key=%s, err=%v", item.IdempotencyKey, removeErr)
		} else {
			log.Printf("[Syncer] 同步成功: key=%s, kind=%s", item.IdempotencyKey, item.Kind)
		}
		return true
	}

	attempts := item.Attempts + 1
	nextAttemptAt := s.now().Add(s.policy.NextDelay(attempts))

	if updateErr := s.queue.UpdateRetryMeta(ctx, item.IdempotencyKey, attempts, nextAttemptAt); updateErr != nil {
		log.Printf("[Syncer] 更新重试元数据失败: key=%s, err=%v", item.IdempotencyKey, updateErr)
	}

	retryable := true
	if errors.As(err, &rerr) {
		retryable = rerr.Retryable
	}
	if journalErr := s.journal.Append(ctx, item.IdempotencyKey, err.Error(), retryable); journalErr != nil {
		log.Printf("[Syncer] 写失败日志失败: key=%s, err=%v", item.IdempotencyKey, journalErr)
	}

	log.Printf("[Syncer] 同步失败: key=%s, attempts=%d, 下次重试=%s, err=%v",
		item.IdempotencyKey, attempts, nextAttemptAt.Format(time.RFC3339), err)
	return false
}
