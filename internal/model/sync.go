package model

// 离线队列操作类型
// 客户端排队与服务端写入端点共用同一套枚举
const (
	KindSale      = "SALE"
	KindReceiving = "RECEIVING"
	KindReturn    = "RETURN"
)

var ValidKinds = map[string]bool{
	KindSale:      true,
	KindReceiving: true,
	KindReturn:    true,
}

// SaleLine 销售明细行
type SaleLine struct {
	SKU            string `json:"sku" binding:"required"`
	Quantity       int64  `json:"quantity" binding:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
}

// SalePayload 离线销售载荷
type SalePayload struct {
	BoutiqueID    string     `json:"boutique_id"`
	PaymentMethod string     `json:"payment_method"`
	Actor         string     `json:"actor"`
	Lines         []SaleLine `json:"lines" binding:"required,min=1,dive"`
}

// StockLine 收货/退货明细行
type StockLine struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

// ReceivingPayload 离线收货载荷
type ReceivingPayload struct {
	BoutiqueID string      `json:"boutique_id"`
	Actor      string      `json:"actor"`
	Lines      []StockLine `json:"lines" binding:"required,min=1,dive"`
}

// ReturnPayload 离线退货载荷
type ReturnPayload struct {
	BoutiqueID string      `json:"boutique_id"`
	Actor      string      `json:"actor"`
	Lines      []StockLine `json:"lines" binding:"required,min=1,dive"`
}
