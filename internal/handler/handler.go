package handler

import (
	"context"
	"errors"
	"strconv"

	"stocksync/internal/config"
	"stocksync/internal/model"
	"stocksync/internal/repository"
	"stocksync/internal/service"
	"stocksync/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	reservationService *service.ReservationService
	stockService       *service.StockService
	cfg                *config.Config
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		reservationService: service.NewReservationService(db, rdb, cfg),
		stockService:       service.NewStockService(db),
		cfg:                cfg,
	}
}

type applyFunc func(ctx context.Context, boutiqueHint, orderNo string, items []service.StockItem, actor string) (bool, error)

// ============================================================
// 同步写入端点（离线队列冲账的目标）
// ============================================================

// SyncSaleRequest 离线销售同步请求
type SyncSaleRequest struct {
	IdempotencyKey string           `json:"idempotency_key" binding:"required"`
	BoutiqueID     string           `json:"boutique_id"`
	PaymentMethod  string           `json:"payment_method"`
	Actor          string           `json:"actor"`
	Lines          []model.SaleLine `json:"lines" binding:"required,min=1,dive"`
}

// SyncSale 同步一笔离线销售：按明细行预占（扣减）库存
// POST /api/v1/sync/sale
//
// 【关键点】同一 idempotency_key 重放多少次都只扣一次，
// 重复提交返回与首次相同的成功响应
func (h *Handler) SyncSale(c *gin.Context) {
	var req SyncSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	items := make([]service.StockItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		items = append(items, service.StockItem{SKU: line.SKU, Quantity: line.Quantity})
	}

	h.apply(c, h.reservationService.Reserve, req.BoutiqueID, req.IdempotencyKey, items, req.Actor)
}

// SyncStockRequest 离线收货/退货同步请求
type SyncStockRequest struct {
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
	BoutiqueID     string            `json:"boutique_id"`
	Actor          string            `json:"actor"`
	Lines          []model.StockLine `json:"lines" binding:"required,min=1,dive"`
}

// SyncReceiving 同步一笔离线收货：入库
// POST /api/v1/sync/receiving
func (h *Handler) SyncReceiving(c *gin.Context) {
	h.bindAndApplyStock(c, h.reservationService.Restock)
}

// SyncReturn 同步一笔离线退货：释放（回加）库存
// POST /api/v1/sync/return
func (h *Handler) SyncReturn(c *gin.Context) {
	h.bindAndApplyStock(c, h.reservationService.Release)
}

func (h *Handler) bindAndApplyStock(c *gin.Context, fn applyFunc) {
	var req SyncStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	items := make([]service.StockItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		items = append(items, service.StockItem{SKU: line.SKU, Quantity: line.Quantity})
	}

	h.apply(c, fn, req.BoutiqueID, req.IdempotencyKey, items, req.Actor)
}

// ============================================================
// 直连预占/释放接口（下单、取消工单调用）
// ============================================================

// ReserveRequest 预占/释放请求
type ReserveRequest struct {
	OrderNo    string `json:"order_no" binding:"required"` // 幂等键，调用方生成
	BoutiqueID string `json:"boutique_id"`
	Actor      string `json:"actor"`
	Items      []struct {
		SKU      string `json:"sku" binding:"required"`
		Quantity int64  `json:"quantity" binding:"required,gt=0"`
	} `json:"items" binding:"required,min=1,dive"`
}

// ReserveStock 预占共享库存
// POST /api/v1/stock/reserve
func (h *Handler) ReserveStock(c *gin.Context) {
	h.bindAndApplyDirect(c, h.reservationService.Reserve)
}

// ReleaseStock 释放共享库存
// POST /api/v1/stock/release
func (h *Handler) ReleaseStock(c *gin.Context) {
	h.bindAndApplyDirect(c, h.reservationService.Release)
}

func (h *Handler) bindAndApplyDirect(c *gin.Context, fn applyFunc) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	items := make([]service.StockItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.StockItem{SKU: item.SKU, Quantity: item.Quantity})
	}

	h.apply(c, fn, req.BoutiqueID, req.OrderNo, items, req.Actor)
}

// apply 调用预占服务并统一处理"成功/已应用/致命错误"三种出口
// 调用方只看到成功或致命失败，绝无部分生效
func (h *Handler) apply(c *gin.Context, fn applyFunc, boutiqueHint, orderNo string, items []service.StockItem, actor string) {
	applied, err := fn(c.Request.Context(), boutiqueHint, orderNo, items, actor)
	if err != nil {
		h.applyError(c, err)
		return
	}

	message := "已应用"
	if !applied {
		message = "幂等命中，已跳过"
	}
	response.Success(c, gin.H{
		"order_no": orderNo,
		"applied":  applied,
		"message":  message,
	})
}

func (h *Handler) applyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrBoutiqueNotFound):
		response.BusinessError(c, response.CodeBoutiqueNotFound, err.Error())
	case errors.Is(err, repository.ErrSKUNotFound):
		response.BusinessError(c, response.CodeSKUNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyItems):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 库存查询接口
// ============================================================

// GetStock 查询当前库存数量
// GET /api/v1/stock?boutique_id=xxx&sku=xxx
func (h *Handler) GetStock(c *gin.Context) {
	boutiqueID := c.Query("boutique_id")
	sku := c.Query("sku")
	if boutiqueID == "" || sku == "" {
		response.ParamError(c, "boutique_id 和 sku 参数不能为空")
		return
	}

	quantity, err := h.stockService.GetQuantity(c.Request.Context(), boutiqueID, sku)
	if err != nil {
		h.applyError(c, err)
		return
	}

	response.Success(c, gin.H{
		"boutique_id": boutiqueID,
		"sku":         sku,
		"quantity":    quantity,
	})
}

// GetMovements 查询库存流水
// GET /api/v1/stock/movements?boutique_id=xxx&sku=xxx&page=1&page_size=10
func (h *Handler) GetMovements(c *gin.Context) {
	boutiqueID := c.Query("boutique_id")
	sku := c.Query("sku")
	if boutiqueID == "" || sku == "" {
		response.ParamError(c, "boutique_id 和 sku 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	movements, total, err := h.stockService.ListMovements(c.Request.Context(), boutiqueID, sku, page, pageSize)
	if err != nil {
		h.applyError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      movements,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 会话接口
// ============================================================

// RefreshSessionRequest 会话刷新请求
type RefreshSessionRequest struct {
	RefreshSecret string `json:"refresh_secret" binding:"required"`
}

// RefreshSession 用刷新密钥换取接口令牌
// POST /api/v1/session/refresh
// 真正的会话体系在本服务范围之外，这里只提供客户端
// 401 刷新路径所需的最小边界契约
func (h *Handler) RefreshSession(c *gin.Context) {
	var req RefreshSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if req.RefreshSecret != h.cfg.Server.RefreshSecret {
		response.Unauthorized(c, "刷新密钥无效")
		return
	}

	response.Success(c, gin.H{
		"token": h.cfg.Server.APIToken,
	})
}
