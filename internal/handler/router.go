package handler

import (
	"stocksync/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置服务端路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// 会话刷新不走令牌校验，否则过期令牌永远换不回新的
	r.POST("/api/v1/session/refresh", h.RefreshSession)

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(TokenAuthMiddleware(cfg.Server.APIToken))
	{
		// 离线同步写入端点
		sync := api.Group("/sync")
		{
			sync.POST("/sale", h.SyncSale)
			sync.POST("/receiving", h.SyncReceiving)
			sync.POST("/return", h.SyncReturn)
		}

		// 库存预占/释放与查询
		stock := api.Group("/stock")
		{
			stock.POST("/reserve", h.ReserveStock)
			stock.POST("/release", h.ReleaseStock)
			stock.GET("", h.GetStock)
			stock.GET("/movements", h.GetMovements)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
