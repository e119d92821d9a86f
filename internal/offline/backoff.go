package offline

import (
	"time"

	"stocksync/internal/config"
)

// BackoffPolicy 重试退避策略
// 纯函数，无状态；指数退避带上限，既压住重试风暴，
// 又保证网络恢复后快速收敛。不设最大重试次数 ——
// 排队项无限重试直到成功或被操作员删除，宁可重试也不丢数据。
type BackoffPolicy struct {
	BaseMs      int64
	CapMs       int64
	MaxExponent int
}

// DefaultBackoffPolicy 线上观测到的策略：1s 2s 4s 8s 16s，之后固定 30s
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseMs:      1000,
		CapMs:       30000,
		MaxExponent: 5,
	}
}

// PolicyFromConfig 从配置构建退避策略
func PolicyFromConfig(cfg *config.SyncConfig) BackoffPolicy {
	return BackoffPolicy{
		BaseMs:      cfg.BaseMs,
		CapMs:       cfg.CapMs,
		MaxExponent: cfg.MaxExponent,
	}
}

// NextDelay 第 attempts 次失败后的等待时长
// nextDelay(attempts) = min(cap, base * 2^min(attempts, maxExponent))
func (p BackoffPolicy) NextDelay(attempts int) time.Duration {
	exp := attempts
	if exp > p.MaxExponent {
		exp = p.MaxExponent
	}
	if exp < 0 {
		exp = 0
	}
	delayMs := p.BaseMs << uint(exp)
	if delayMs > p.CapMs || delayMs <= 0 {
		delayMs = p.CapMs
	}
	return time.Duration(delayMs) * time.Millisecond
}
