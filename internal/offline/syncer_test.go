package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stocksync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRemote 按脚本逐次返回 Submit 结果，空脚本一律成功
type stubRemote struct {
	mu         sync.Mutex
	responses  []error
	submitted  []string
	refreshErr error
	refreshes  int

	blockCh   chan struct{} // 非 nil 时 Submit 阻塞，用于并发冲账测试
	startedCh chan struct{}
}

func (r *stubRemote) Submit(ctx context.Context, item *QueueItem) error {
	r.mu.Lock()
	r.submitted = append(r.submitted, item.IdempotencyKey)
	var err error
	if len(r.responses) > 0 {
		err = r.responses[0]
		r.responses = r.responses[1:]
	}
	started := r.startedCh
	block := r.blockCh
	r.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	return err
}

func (r *stubRemote) RefreshSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	return r.refreshErr
}

func (r *stubRemote) submitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted)
}

func newTestSyncer(t *testing.T, remote Remote) (*Syncer, *DurableQueue) {
	t.Helper()
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)
	journal := NewErrorJournal(store, 100)
	return NewSyncer(queue, journal, remote, DefaultBackoffPolicy(), time.Minute), queue
}

func TestFlushRemovesSyncedItems(t *testing.T) {
	remote := &stubRemote{}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	synced, failed := syncer.Flush(ctx, model.KindSale)
	assert.Equal(t, 2, synced)
	assert.Equal(t, 0, failed)

	pending, err := queue.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlushFailureUpdatesRetryMetaAndJournal(t *testing.T) {
	remote := &stubRemote{
		responses: []error{&RemoteError{StatusCode: 503, Message: "unavailable", Retryable: true}},
	}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	syncer.now = func() time.Time { return now }

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	synced, failed := syncer.Flush(ctx, model.KindSale)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 1, failed)

	item, err := queue.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Attempts)
	// attempts=1 → nextDelay=2s
	assert.WithinDuration(t, now.Add(2*time.Second), item.NextAttemptAt, time.Second)

	entries, err := syncer.journal.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, key, entries[0].IdempotencyKey)
	assert.True(t, entries[0].Retryable)
}

func TestFlushSkipsItemsNotDue(t *testing.T) {
	remote := &stubRemote{}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)
	require.NoError(t, queue.UpdateRetryMeta(ctx, key, 1, time.Now().Add(time.Hour)))

	synced, failed := syncer.Flush(ctx, model.KindSale)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, remote.submitCount())
}

func TestAuthFailureRefreshesAndRetriesOnce(t *testing.T) {
	remote := &stubRemote{
		responses: []error{
			&RemoteError{StatusCode: 401, Message: "令牌无效", Unauthorized: true},
			nil, // 刷新后的立即重试成功
		},
	}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	synced, failed := syncer.Flush(ctx, model.KindSale)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, remote.refreshes)
	assert.Equal(t, 2, remote.submitCount())

	pending, err := queue.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAuthRefreshFailureDegradesToBackoff(t *testing.T) {
	remote := &stubRemote{
		responses:  []error{&RemoteError{StatusCode: 401, Message: "令牌无效", Unauthorized: true}},
		refreshErr: errors.New("刷新失败"),
	}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	synced, failed := syncer.Flush(ctx, model.KindSale)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, remote.refreshes)
	assert.Equal(t, 1, remote.submitCount())

	item, err := queue.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Attempts)
}

func TestFlushDoesNotOverlapPerKind(t *testing.T) {
	remote := &stubRemote{
		blockCh:   make(chan struct{}),
		startedCh: make(chan struct{}, 1),
	}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		syncer.Flush(ctx, model.KindSale)
		close(done)
	}()

	// 等第一趟冲账进入远端调用后再重入触发
	<-remote.startedCh
	synced, failed := syncer.Flush(ctx, model.KindSale)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 0, failed)

	close(remote.blockCh)
	<-done

	assert.Equal(t, 1, remote.submitCount())
}

func TestRetryItemBypassesNextAttemptAt(t *testing.T) {
	remote := &stubRemote{}
	syncer, queue := newTestSyncer(t, remote)
	ctx := context.Background()

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)
	require.NoError(t, queue.UpdateRetryMeta(ctx, key, 4, time.Now().Add(time.Hour)))

	require.NoError(t, syncer.RetryItem(ctx, key))

	pending, err := queue.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRetryItemUnknownKey(t *testing.T) {
	remote := &stubRemote{}
	syncer, _ := newTestSyncer(t, remote)

	err := syncer.RetryItem(context.Background(), "no-such-key")
	assert.Error(t, err)
}
