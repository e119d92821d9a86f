package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"stocksync/internal/config"
	"stocksync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testToken  = "test-token"
	testSecret = "test-secret"
)

func setupTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "handler_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Boutique{},
		&model.Product{},
		&model.StockRow{},
		&model.StockMovement{},
		&model.AuditEntry{},
		&model.OutboxMessage{},
	))

	cfg := &config.Config{}
	cfg.Server.APIToken = testToken
	cfg.Server.RefreshSecret = testSecret
	cfg.Kafka.Topic.StockResult = "stock_result"

	return SetupRouter(db, nil, cfg), db
}

func seedStock(t *testing.T, db *gorm.DB, qty int64) {
	t.Helper()
	boutique := &model.Boutique{TenantID: "t-1", Code: "bq-1", Name: "旗舰店"}
	require.NoError(t, db.Create(boutique).Error)
	product := &model.Product{SKU: "SKU-X", Name: "衬衫", UnitPriceCents: 1500}
	require.NoError(t, db.Create(product).Error)
	require.NoError(t, db.Create(&model.StockRow{
		BoutiqueID: boutique.ID,
		ProductID:  product.ID,
		Quantity:   qty,
	}).Error)
}

func postJSON(t *testing.T, router http.Handler, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Api-Token", token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) (int, map[string]interface{}) {
	t.Helper()
	var body struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code, body.Data
}

func TestSyncSaleAndReplay(t *testing.T) {
	router, db := setupTestRouter(t)
	seedStock(t, db, 10)

	req := map[string]interface{}{
		"idempotency_key": "OFF20260101000000_00000001",
		"boutique_id":     "bq-1",
		"payment_method":  "CASH",
		"actor":           "pos-1",
		"lines": []map[string]interface{}{
			{"sku": "SKU-X", "quantity": 2, "unit_price_cents": 1500},
		},
	}

	w := postJSON(t, router, "/api/v1/sync/sale", testToken, req)
	require.Equal(t, http.StatusOK, w.Code)
	code, data := decodeBody(t, w)
	assert.Equal(t, 0, code)
	assert.Equal(t, true, data["applied"])

	// 同一幂等键重放：同样的成功响应，applied=false，库存不二次扣减
	w = postJSON(t, router, "/api/v1/sync/sale", testToken, req)
	require.Equal(t, http.StatusOK, w.Code)
	code, data = decodeBody(t, w)
	assert.Equal(t, 0, code)
	assert.Equal(t, false, data["applied"])

	var row model.StockRow
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, int64(8), row.Quantity)
}

func TestSyncSaleUnknownSKU(t *testing.T) {
	router, db := setupTestRouter(t)
	seedStock(t, db, 10)

	w := postJSON(t, router, "/api/v1/sync/sale", testToken, map[string]interface{}{
		"idempotency_key": "OFF20260101000000_00000002",
		"boutique_id":     "bq-1",
		"lines": []map[string]interface{}{
			{"sku": "SKU-GHOST", "quantity": 1},
		},
	})

	// 域解析失败属于不可重试类，4xx 状态码 + 业务错误码
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	code, _ := decodeBody(t, w)
	assert.Equal(t, 1002, code)
}

func TestSyncReturnRestoresStock(t *testing.T) {
	router, db := setupTestRouter(t)
	seedStock(t, db, 5)

	w := postJSON(t, router, "/api/v1/sync/return", testToken, map[string]interface{}{
		"idempotency_key": "OFF20260101000000_00000003",
		"boutique_id":     "bq-1",
		"actor":           "pos-1",
		"lines": []map[string]interface{}{
			{"sku": "SKU-X", "quantity": 2},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var row model.StockRow
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, int64(7), row.Quantity)
}

func TestSyncReceivingAddsStock(t *testing.T) {
	router, db := setupTestRouter(t)
	seedStock(t, db, 5)

	w := postJSON(t, router, "/api/v1/sync/receiving", testToken, map[string]interface{}{
		"idempotency_key": "OFF20260101000000_00000004",
		"boutique_id":     "bq-1",
		"lines": []map[string]interface{}{
			{"sku": "SKU-X", "quantity": 3},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var row model.StockRow
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, int64(8), row.Quantity)
}

func TestTokenAuthRejectsBadToken(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := postJSON(t, router, "/api/v1/sync/sale", "wrong-token", map[string]interface{}{
		"idempotency_key": "OFF20260101000000_00000005",
		"lines": []map[string]interface{}{
			{"sku": "SKU-X", "quantity": 1},
		},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, router, "/api/v1/sync/sale", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionRefresh(t *testing.T) {
	router, _ := setupTestRouter(t)

	// 刷新接口不走令牌校验
	w := postJSON(t, router, "/api/v1/session/refresh", "", map[string]interface{}{
		"refresh_secret": testSecret,
	})
	require.Equal(t, http.StatusOK, w.Code)
	code, data := decodeBody(t, w)
	assert.Equal(t, 0, code)
	assert.Equal(t, testToken, data["token"])

	w = postJSON(t, router, "/api/v1/session/refresh", "", map[string]interface{}{
		"refresh_secret": "wrong-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetStock(t *testing.T) {
	router, db := setupTestRouter(t)
	seedStock(t, db, 42)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock?boutique_id=bq-1&sku=SKU-X", nil)
	req.Header.Set("X-Api-Token", testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	code, data := decodeBody(t, w)
	assert.Equal(t, 0, code)
	assert.Equal(t, float64(42), data["quantity"])
}

func TestSyncSaleRejectsMissingKey(t *testing.T) {
	router, db := setupTestRouter(t)
	seedStock(t, db, 10)

	w := postJSON(t, router, "/api/v1/sync/sale", testToken, map[string]interface{}{
		"boutique_id": "bq-1",
		"lines": []map[string]interface{}{
			{"sku": "SKU-X", "quantity": 1},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
