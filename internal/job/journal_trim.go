package job

import (
	"context"
	"log"
	"time"

	"stocksync/internal/offline"
)

// JournalTrimJob 周期性裁剪失败日志，保证有界
// Append 时已裁过一次，这里兜底处理外部直接写库等旁路情况
type JournalTrimJob struct {
	journal  *offline.ErrorJournal
	stopCh   chan struct{}
	interval time.Duration
}

func NewJournalTrimJob(journal *offline.ErrorJournal) *JournalTrimJob {
	return &JournalTrimJob{
		journal:  journal,
		stopCh:   make(chan struct{}),
		interval: 5 * time.Minute,
	}
}

func (j *JournalTrimJob) Start(ctx context.Context) {
	log.Println("[JournalTrim] 日志裁剪任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[JournalTrim] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[JournalTrim] 任务停止")
			return
		case <-ticker.C:
			trimmed, err := j.journal.Trim(ctx)
			if err != nil {
				log.Printf("[JournalTrim] 裁剪失败: %v", err)
				continue
			}
			if trimmed > 0 {
				log.Printf("[JournalTrim] 已淘汰 %d 条最旧记录", trimmed)
			}
		}
	}
}

func (j *JournalTrimJob) Stop() {
	close(j.stopCh)
}
