package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/handler"
	"stocksync/internal/job"
	"stocksync/internal/offline"
	"stocksync/pkg/idgen"
)

// 离线代理：门店终端侧的同步进程
// 维护本地持久队列，网络可用时把积压的销售/收货/退货冲到库存服务
func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(2)

	// 打开本地持久库
	store, err := offline.OpenStore(cfg.Agent.DBPath)
	if err != nil {
		log.Fatalf("打开本地库失败: %v", err)
	}

	queue := offline.NewDurableQueue(store)
	journal := offline.NewErrorJournal(store, cfg.Agent.JournalCap)
	remote := offline.NewHTTPRemote(cfg.Agent.RemoteURL, cfg.Agent.APIToken, cfg.Agent.RefreshSecret)

	policy := offline.PolicyFromConfig(&cfg.Sync)
	syncer := offline.NewSyncer(queue, journal, remote, policy,
		time.Duration(cfg.Sync.IntervalSeconds)*time.Second)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动同步驱动（启动即冲一次账）和后台任务
	go syncer.Start(ctx)

	pendingReport := job.NewPendingReportJob(queue)
	go pendingReport.Start(ctx)

	journalTrim := job.NewJournalTrimJob(journal)
	go journalTrim.Start(ctx)

	// 运维管理接口
	router := handler.SetupAgentRouter(queue, journal, syncer)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Agent.AdminPort),
		Handler: router,
	}

	go func() {
		log.Printf("离线代理启动，管理端口: %d", cfg.Agent.AdminPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("管理接口启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭离线代理...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭异常: %v", err)
	}

	log.Println("离线代理已关闭")
}
