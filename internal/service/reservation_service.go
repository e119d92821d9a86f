package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/infrastructure/lock"
	"stocksync/internal/model"
	"stocksync/internal/repository"
	"stocksync/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrEmptyItems = errors.New("明细不能为空")
)

// StockItem 一次预占/释放请求中的一行
type StockItem struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// ReservationService 共享库存幂等预占服务
//
// 【关键点】这是系统中唯一允许写库存行的角色，需要保证：
// 1. 幂等性：同一 (操作类型, orderNo) 只生效一次，重放返回"已应用"
// 2. 原子性：多行明细的库存变更、流水、幂等门卫必须同时成功或同时失败
// 3. 并发安全：分布式锁 + 门卫表唯一索引双重防线
type ReservationService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	boutiqueRepo *repository.BoutiqueRepository
	productRepo  *repository.ProductRepository
	stockRepo    *repository.StockRepository
	movementRepo *repository.MovementRepository
	auditRepo    *repository.AuditRepository
	outboxRepo   *repository.OutboxRepository
}

// NewReservationService 创建预占服务
// redisClient 为 nil 时跳过分布式锁（单元测试场景），幂等仍由门卫表保证
func NewReservationService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ReservationService {
	return &ReservationService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		boutiqueRepo: repository.NewBoutiqueRepository(db),
		productRepo:  repository.NewProductRepository(db),
		stockRepo:    repository.NewStockRepository(db),
		movementRepo: repository.NewMovementRepository(db),
		auditRepo:    repository.NewAuditRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

// opSpec 一类库存操作的固定参数
type opSpec struct {
	action       string // 幂等门卫动作
	reasonPrefix string // 流水 reason 前缀
	sign         int64  // 数量符号：预占 -1，释放/入库 +1
	clampAtZero  bool   // 是否下限截断为 0
}

// Reserve 预占库存：数量扣减，不做下限约束（可为负，超卖信号）
func (s *ReservationService) Reserve(ctx context.Context, boutiqueHint, orderNo string, items []StockItem, actor string) (bool, error) {
	return s.apply(ctx, boutiqueHint, orderNo, items, actor, opSpec{
		action:       model.AuditActionReserve,
		reasonPrefix: model.ReasonPrefixReserve,
		sign:         -1,
		clampAtZero:  false,
	})
}

// Release 释放库存：预占的镜像操作，数量回加，下限截断为 0
func (s *ReservationService) Release(ctx context.Context, boutiqueHint, orderNo string, items []StockItem, actor string) (bool, error) {
	return s.apply(ctx, boutiqueHint, orderNo, items, actor, opSpec{
		action:       model.AuditActionRelease,
		reasonPrefix: model.ReasonPrefixRelease,
		sign:         +1,
		clampAtZero:  true,
	})
}

// Restock 入库：收货单走此路径，语义同释放但独立的门卫动作和 reason
func (s *ReservationService) Restock(ctx context.Context, boutiqueHint, orderNo string, items []StockItem, actor string) (bool, error) {
	return s.apply(ctx, boutiqueHint, orderNo, items, actor, opSpec{
		action:       model.AuditActionRestock,
		reasonPrefix: model.ReasonPrefixRestock,
		sign:         +1,
		clampAtZero:  true,
	})
}

// apply 幂等地应用一次库存变更
// 返回值 applied=false 表示命中幂等记录、本次什么都没做，对调用方同样视为成功
func (s *ReservationService) apply(ctx context.Context, boutiqueHint, orderNo string, items []StockItem, actor string, op opSpec) (bool, error) {
	if len(items) == 0 {
		return false, ErrEmptyItems
	}

	// 解析门店：提示优先，解析不到回退到默认门店；一家都没有则为致命配置错误
	boutique, err := s.resolveBoutique(ctx, boutiqueHint)
	if err != nil {
		return false, err
	}

	// 解析 SKU，全有或全无：任一行解析失败，整个操作在任何写入前终止
	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}
	products, err := s.productRepo.ResolveSKUs(ctx, skus)
	if err != nil {
		return false, err
	}

	// 幂等预检查
	exists, err := s.auditRepo.Exists(ctx, op.action, orderNo)
	if err != nil {
		return false, fmt.Errorf("查询幂等记录失败: %w", err)
	}
	if exists {
		log.Printf("[Reservation] 幂等命中，跳过: action=%s, orderNo=%s", op.action, orderNo)
		return false, nil
	}

	// 获取分布式锁，锁后再次检查幂等
	if s.redisClient != nil {
		reserveLock := lock.NewReservationLock(s.redisClient, orderNo, op.action)
		if err := reserveLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return false, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer reserveLock.Unlock(ctx)

		exists, err = s.auditRepo.Exists(ctx, op.action, orderNo)
		if err != nil {
			return false, fmt.Errorf("查询幂等记录失败: %w", err)
		}
		if exists {
			log.Printf("[Reservation] 幂等命中（锁内），跳过: action=%s, orderNo=%s", op.action, orderNo)
			return false, nil
		}
	}

	reason := fmt.Sprintf("%s:%s", op.reasonPrefix, orderNo)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			product := products[item.SKU]

			current, err := s.stockRepo.GetQuantity(ctx, tx, boutique.ID, product.ID)
			if err != nil {
				return fmt.Errorf("查询库存失败: %w", err)
			}

			next := current + op.sign*item.Quantity
			if op.clampAtZero && next < 0 {
				next = 0
			}

			if err := s.stockRepo.Upsert(ctx, tx, boutique.ID, product.ID, next); err != nil {
				return fmt.Errorf("更新库存失败: %w", err)
			}

			movement := &model.StockMovement{
				MovementNo: idgen.GenerateMovementNo(),
				BoutiqueID: boutique.ID,
				ProductID:  product.ID,
				Delta:      op.sign * item.Quantity,
				QtyBefore:  current,
				QtyAfter:   next,
				Reason:     reason,
				Actor:      actor,
			}
			if err := s.movementRepo.Create(ctx, tx, movement); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}

		// 幂等门卫：唯一索引兜底，漏过预检查的并发重复在这里整体回滚
		entry := &model.AuditEntry{
			Action:     op.action,
			ResourceID: orderNo,
			Actor:      actor,
		}
		if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
			return err
		}

		return s.writeOutbox(ctx, tx, boutique.ID, orderNo, op, items, products)
	})

	if err != nil {
		// 事务内撞唯一索引：并发重复请求已经应用过，等价于幂等命中
		if errors.Is(err, repository.ErrDuplicateAudit) {
			log.Printf("[Reservation] 幂等命中（事务内），跳过: action=%s, orderNo=%s", op.action, orderNo)
			return false, nil
		}
		return false, err
	}

	log.Printf("[Reservation] 应用成功: action=%s, orderNo=%s, boutique=%s, items=%d",
		op.action, orderNo, boutique.Code, len(items))
	return true, nil
}

func (s *ReservationService) resolveBoutique(ctx context.Context, hint string) (*model.Boutique, error) {
	if hint != "" {
		boutique, err := s.boutiqueRepo.GetByHint(ctx, hint)
		if err != nil {
			return nil, fmt.Errorf("查询门店失败: %w", err)
		}
		if boutique != nil {
			return boutique, nil
		}
	}
	boutique, err := s.boutiqueRepo.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrBoutiqueNotFound) {
			return nil, repository.ErrBoutiqueNotFound
		}
		return nil, fmt.Errorf("查询门店失败: %w", err)
	}
	return boutique, nil
}

// writeOutbox 库存变动事件与库存写入同事务落库，由 OutboxSender 异步投递
func (s *ReservationService) writeOutbox(ctx context.Context, tx *gorm.DB, boutiqueID int64, orderNo string, op opSpec, items []StockItem, products map[string]*model.Product) error {
	type eventItem struct {
		SKU   string `json:"sku"`
		Delta int64  `json:"delta"`
	}
	eventItems := make([]eventItem, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, eventItem{
			SKU:   products[item.SKU].SKU,
			Delta: op.sign * item.Quantity,
		})
	}

	payload := map[string]interface{}{
		"order_no":    orderNo,
		"action":      op.action,
		"boutique_id": boutiqueID,
		"items":       eventItems,
		"occurred_at": time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: orderNo,
		Topic:      s.cfg.Kafka.Topic.StockResult,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
