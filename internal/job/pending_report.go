package job

import (
	"context"
	"log"
	"time"

	"stocksync/internal/offline"
)

// PendingReportJob 每 30 秒刷新一次待同步数量
// 界面角标走管理接口取实时值，这条日志留给运维看趋势
type PendingReportJob struct {
	queue    *offline.DurableQueue
	stopCh   chan struct{}
	interval time.Duration
}

func NewPendingReportJob(queue *offline.DurableQueue) *PendingReportJob {
	return &PendingReportJob{
		queue:    queue,
		stopCh:   make(chan struct{}),
		interval: 30 * time.Second,
	}
}

func (j *PendingReportJob) Start(ctx context.Context) {
	log.Println("[PendingReport] 待同步统计任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PendingReport] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PendingReport] 任务停止")
			return
		case <-ticker.C:
			j.report(ctx)
		}
	}
}

func (j *PendingReportJob) Stop() {
	close(j.stopCh)
}

func (j *PendingReportJob) report(ctx context.Context) {
	counts, err := j.queue.CountPending(ctx)
	if err != nil {
		log.Printf("[PendingReport] 统计失败: %v", err)
		return
	}
	if len(counts) == 0 {
		return
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	log.Printf("[PendingReport] 待同步: 总计=%d, 明细=%v", total, counts)
}
