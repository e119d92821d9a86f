package handler

import (
	"strconv"

	"stocksync/internal/offline"
	"stocksync/pkg/response"

	"github.com/gin-gonic/gin"
)

// AgentHandler 离线代理的运维接口
// 操作员控制台用：看待同步队列和角标数、手动冲账、
// 单项重试/删除、查看和清空失败日志
type AgentHandler struct {
	queue   *offline.DurableQueue
	journal *offline.ErrorJournal
	syncer  *offline.Syncer
}

func NewAgentHandler(queue *offline.DurableQueue, journal *offline.ErrorJournal, syncer *offline.Syncer) *AgentHandler {
	return &AgentHandler{
		queue:   queue,
		journal: journal,
		syncer:  syncer,
	}
}

// ListPending 查看待同步队列
// GET /api/v1/queue/pending?kind=SALE
func (h *AgentHandler) ListPending(c *gin.Context) {
	kind := c.Query("kind")

	items, err := h.queue.ListPending(c.Request.Context(), kind)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	counts, err := h.queue.CountPending(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	response.Success(c, gin.H{
		"list":   items,
		"counts": counts,
		"total":  total,
	})
}

// DeleteItem 删除卡住的队列项（放弃该笔离线操作）
// POST /api/v1/queue/delete
func (h *AgentHandler) DeleteItem(c *gin.Context) {
	var req struct {
		IdempotencyKey string `json:"idempotency_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.queue.Remove(c.Request.Context(), req.IdempotencyKey); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "已删除"})
}

// SyncNow 手动触发一次冲账
// POST /api/v1/sync/now
func (h *AgentHandler) SyncNow(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
	}
	// 请求体可省略，省略时对所有类型冲账
	_ = c.ShouldBindJSON(&req)

	if req.Kind != "" {
		synced, failed := h.syncer.Flush(c.Request.Context(), req.Kind)
		response.Success(c, gin.H{"synced": synced, "failed": failed})
		return
	}

	h.syncer.FlushAll(c.Request.Context())
	response.Success(c, gin.H{"message": "已触发全量冲账"})
}

// RetryItem 手动重试单项，绕过 next_attempt_at 门限
// POST /api/v1/sync/retry
func (h *AgentHandler) RetryItem(c *gin.Context) {
	var req struct {
		IdempotencyKey string `json:"idempotency_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.syncer.RetryItem(c.Request.Context(), req.IdempotencyKey); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "重试成功"})
}

// ListJournal 查看失败日志
// GET /api/v1/journal?limit=100
func (h *AgentHandler) ListJournal(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.journal.List(c.Request.Context(), limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": entries})
}

// ClearJournal 清空失败日志
// POST /api/v1/journal/clear
func (h *AgentHandler) ClearJournal(c *gin.Context) {
	if err := h.journal.Clear(c.Request.Context()); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "已清空"})
}

// SetupAgentRouter 配置离线代理管理路由
func SetupAgentRouter(queue *offline.DurableQueue, journal *offline.ErrorJournal, syncer *offline.Syncer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())

	h := NewAgentHandler(queue, journal, syncer)

	api := r.Group("/api/v1")
	{
		queue := api.Group("/queue")
		{
			queue.GET("/pending", h.ListPending)
			queue.POST("/delete", h.DeleteItem)
		}

		sync := api.Group("/sync")
		{
			sync.POST("/now", h.SyncNow)
			sync.POST("/retry", h.RetryItem)
		}

		journal := api.Group("/journal")
		{
			journal.GET("", h.ListJournal)
			journal.POST("/clear", h.ClearJournal)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
