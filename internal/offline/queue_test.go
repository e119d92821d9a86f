package offline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stocksync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*GormStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent_test.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	return store, path
}

func salePayload() model.SalePayload {
	return model.SalePayload{
		BoutiqueID:    "bq-1",
		PaymentMethod: "CASH",
		Actor:         "pos-1",
		Lines: []model.SaleLine{
			{SKU: "X", Quantity: 2, UnitPriceCents: 1500},
		},
	}
}

func TestEnqueueAndListPending(t *testing.T) {
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)
	ctx := context.Background()

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	_, err = queue.Enqueue(ctx, model.KindReturn, model.ReturnPayload{
		BoutiqueID: "bq-1",
		Lines:      []model.StockLine{{SKU: "X", Quantity: 1}},
	})
	require.NoError(t, err)

	all, err := queue.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sales, err := queue.ListPending(ctx, model.KindSale)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, key, sales[0].IdempotencyKey)
	assert.Equal(t, 0, sales[0].Attempts)
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)

	_, err := queue.Enqueue(context.Background(), "TRANSFER", salePayload())
	assert.Error(t, err)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)
	ctx := context.Background()

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	require.NoError(t, queue.Remove(ctx, key))
	// 再删一次、删不存在的键，都是空操作
	require.NoError(t, queue.Remove(ctx, key))
	require.NoError(t, queue.Remove(ctx, "no-such-key"))

	all, err := queue.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateRetryMeta(t *testing.T) {
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)
	ctx := context.Background()

	key, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	next := time.Now().Add(4 * time.Second).Truncate(time.Second)
	require.NoError(t, queue.UpdateRetryMeta(ctx, key, 3, next))

	item, err := queue.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 3, item.Attempts)
	assert.WithinDuration(t, next, item.NextAttemptAt, time.Second)

	// 已删除的键更新为空操作，不报错
	require.NoError(t, queue.Remove(ctx, key))
	require.NoError(t, queue.UpdateRetryMeta(ctx, key, 9, next))
}

func TestListDueGatesOnNextAttemptAt(t *testing.T) {
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)
	ctx := context.Background()

	dueKey, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)

	futureKey, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)
	require.NoError(t, queue.UpdateRetryMeta(ctx, futureKey, 1, time.Now().Add(time.Hour)))

	due, err := queue.ListDue(ctx, model.KindSale)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueKey, due[0].IdempotencyKey)
}

func TestQueueSurvivesRestart(t *testing.T) {
	store, path := newTestStore(t)
	queue := NewDurableQueue(store)
	ctx := context.Background()

	key1, err := queue.Enqueue(ctx, model.KindSale, salePayload())
	require.NoError(t, err)
	key2, err := queue.Enqueue(ctx, model.KindReceiving, model.ReceivingPayload{
		BoutiqueID: "bq-1",
		Lines:      []model.StockLine{{SKU: "Y", Quantity: 5}},
	})
	require.NoError(t, err)

	// 模拟进程重启：重新打开同一个文件
	reopened, err := OpenStore(path)
	require.NoError(t, err)
	queue2 := NewDurableQueue(reopened)

	all, err := queue2.ListPending(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	keys := []string{all[0].IdempotencyKey, all[1].IdempotencyKey}
	assert.Contains(t, keys, key1)
	assert.Contains(t, keys, key2)
}

func TestCountPending(t *testing.T) {
	store, _ := newTestStore(t)
	queue := NewDurableQueue(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(ctx, model.KindSale, salePayload())
		require.NoError(t, err)
	}
	_, err := queue.Enqueue(ctx, model.KindReturn, model.ReturnPayload{
		BoutiqueID: "bq-1",
		Lines:      []model.StockLine{{SKU: "X", Quantity: 1}},
	})
	require.NoError(t, err)

	counts, err := queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[model.KindSale])
	assert.Equal(t, int64(1), counts[model.KindReturn])
}
