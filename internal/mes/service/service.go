package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/metrics"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
	"github.com/bitfantasy/nimo-mes/internal/shared/realtime"
	"github.com/bitfantasy/nimo-mes/internal/shared/storage"
)

// ErrConcurrentModification 事务内实际更新行数与读取不一致，事务已回滚
var ErrConcurrentModification = errors.New("concurrent modification")

// 建单缺料处理方式
const (
	OnShortageReject  = "reject"
	OnShortagePartial = "partial"
	OnShortageDraftPO = "draft_po"
)

// Options 服务依赖，零值字段使用默认实现
type Options struct {
	Locker     lock.Locker
	Publisher  Publisher
	Metrics    *metrics.Collector
	Logger     *zap.Logger
	Policy     engine.Policy
	OnShortage string
	Providers  ProviderFactory
	Archiver   storage.Archiver
}

// Services MES服务集合
type Services struct {
	Order   *OrderService
	Process *ProcessService
	Batch   *BatchService
	Ledger  *LedgerService
	Queue   *QueueService
	Stock   *StockService
	Report  *ReportService

	core *core
}

// NewServices 创建MES服务集合
func NewServices(repos *repository.Repositories, opts Options) *Services {
	c := &core{
		repos:      repos,
		locker:     opts.Locker,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		policy:     opts.Policy,
		onShortage: opts.OnShortage,
		providers:  opts.Providers,
	}
	if c.locker == nil {
		c.locker = lock.NewLocalLocker()
	}
	if c.publisher == nil {
		c.publisher = noopPublisher{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.policy == (engine.Policy{}) {
		c.policy = engine.DefaultPolicy()
	}
	if c.onShortage == "" {
		c.onShortage = OnShortageReject
	}
	if c.providers == nil {
		c.providers = DefaultProviders
	}

	return &Services{
		Order:   &OrderService{core: c},
		Process: &ProcessService{core: c},
		Batch:   &BatchService{core: c},
		Ledger:  &LedgerService{core: c},
		Queue:   &QueueService{core: c},
		Stock:   &StockService{core: c},
		Report:  &ReportService{core: c, archiver: opts.Archiver},
		core:    c,
	}
}

// Actor 合并 JWT 中的角色与角色目录中的授权
func (s *Services) Actor(ctx context.Context, userID string, claimed []string) (engine.Actor, error) {
	actor := engine.Actor{UserID: userID, Roles: append([]string(nil), claimed...)}
	if userID == "" {
		return actor, nil
	}
	granted, err := s.core.providers(s.core.repos).Roles.RolesOf(ctx, userID)
	if err != nil {
		return actor, fmt.Errorf("查询用户角色失败: %w", err)
	}
	for _, role := range granted {
		if !actor.HasRole(role) {
			actor.Roles = append(actor.Roles, role)
		}
	}
	return actor, nil
}

// Policy 当前生效的业务策略
func (s *Services) Policy() engine.Policy {
	return s.core.policy
}

type core struct {
	repos      *repository.Repositories
	locker     lock.Locker
	publisher  Publisher
	metrics    *metrics.Collector
	logger     *zap.Logger
	policy     engine.Policy
	onShortage string
	providers  ProviderFactory
}

type orderTransition struct {
	action string
	to     string
}

// unit 一次加锁事务内的上下文，提交后统一推送与记录指标
type unit struct {
	ctx   context.Context
	tx    *repository.Repositories
	p     Providers
	mo    *entity.ManufacturingOrder
	actor engine.Actor
	now   time.Time
	seq   int

	updates     []realtime.OrderUpdate
	transitions []orderTransition
	releases    map[string]int
	batchDone   []batchCompletion
}

type batchCompletion struct {
	process string
	auto    bool
}

func (c *core) notFound(entityName, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &engine.NotFoundError{Entity: entityName, ID: id}
	}
	return err
}

// resolveOrderID 按ID或MO编号解析出MO主键
func (c *core) resolveOrderID(ctx context.Context, ref string) (string, error) {
	mo, err := c.repos.Order.FindByID(ctx, ref)
	if err != nil {
		return "", c.notFound("manufacturing order", ref, err)
	}
	return mo.ID, nil
}

// withOrder 按引用解析MO后加锁执行
func (c *core) withOrder(ctx context.Context, actor engine.Actor, moRef, op string, fn func(u *unit) error) (*entity.ManufacturingOrder, error) {
	id, err := c.resolveOrderID(ctx, moRef)
	if err != nil {
		c.fail(op, moRef, err)
		return nil, err
	}
	return c.inOrder(ctx, actor, id, op, fn)
}

// withStockOrder 先取原料锁再取MO锁，用于预留共享原料的操作
func (c *core) withStockOrder(ctx context.Context, actor engine.Actor, moRef, op string, fn func(u *unit) error) (*entity.ManufacturingOrder, error) {
	unlock, err := c.locker.Lock(ctx, stockLockKey)
	if err != nil {
		err = fmt.Errorf("%s: acquire stock lock: %w", op, err)
		c.fail(op, moRef, err)
		return nil, err
	}
	defer unlock()
	return c.withOrder(ctx, actor, moRef, op, fn)
}

// inOrder 获取MO锁，在事务中重新读取并锁定MO行后执行 fn；提交后推送变更
func (c *core) inOrder(ctx context.Context, actor engine.Actor, moID, op string, fn func(u *unit) error) (*entity.ManufacturingOrder, error) {
	waitStart := time.Now()
	unlock, err := c.locker.Lock(ctx, lock.OrderKey(moID))
	if err != nil {
		err = fmt.Errorf("%s: acquire order lock: %w", op, err)
		c.fail(op, moID, err)
		return nil, err
	}
	defer unlock()
	c.metrics.ObserveLockWait(time.Since(waitStart).Seconds())

	var u *unit
	err = c.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		mo, err := tx.Order.LockByID(ctx, moID)
		if err != nil {
			return c.notFound("manufacturing order", moID, err)
		}
		u = &unit{ctx: ctx, tx: tx, p: c.providers(tx), mo: mo, actor: actor, now: time.Now()}
		return fn(u)
	})
	if err != nil {
		c.fail(op, moID, err)
		return nil, err
	}
	c.commit(op, u)
	return u.mo, nil
}

func (c *core) commit(op string, u *unit) {
	for _, t := range u.transitions {
		c.metrics.RecordTransition(t.action, t.to)
	}
	for kind, n := range u.releases {
		c.metrics.RecordRelease(kind, n)
	}
	for _, b := range u.batchDone {
		c.metrics.RecordBatchCompleted(b.process, b.auto)
	}
	for _, update := range u.updates {
		c.publisher.PublishOrderUpdate(update)
	}
	if len(u.updates) > 0 {
		c.logger.Info("mo updated",
			zap.String("op", op),
			zap.String("mo_id", u.mo.MOCode),
			zap.String("status", u.mo.Status),
			zap.String("operator", u.actor.UserID),
			zap.Int("events", len(u.updates)),
		)
	}
}

func (c *core) fail(op, ref string, err error) {
	kind := errorKind(err)
	c.metrics.RecordError(op, kind)
	if kind == "internal" {
		c.logger.Error("mes operation failed", zap.String("op", op), zap.String("ref", ref), zap.Error(err))
		return
	}
	c.logger.Debug("mes operation rejected", zap.String("op", op), zap.String("ref", ref), zap.String("kind", kind), zap.Error(err))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, engine.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, engine.ErrInvalidProductSpec):
		return "invalid_product_spec"
	case errors.Is(err, engine.ErrBatchesIncomplete):
		return "batches_incomplete"
	case errors.Is(err, engine.ErrStepsIncomplete):
		return "steps_incomplete"
	case errors.Is(err, engine.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, engine.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, engine.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	}
	return "internal"
}

// record 写入MO日志，并排队一条提交后的实时推送
func (u *unit) record(entityType, entityID, action, from, to string, data interface{}, comment string) error {
	var payload datatypes.JSON
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		payload = datatypes.JSON(raw)
	}
	// 同一事务内的日志按写入顺序递增
	u.seq++
	ev := &entity.MOEvent{
		ID:         uuid.New().String(),
		MOID:       u.mo.ID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		OperatorID: u.actor.UserID,
		EventData:  payload,
		Comment:    comment,
		CreatedAt:  u.now.Add(time.Duration(u.seq) * time.Microsecond),
	}
	if err := u.tx.Event.Create(u.ctx, ev); err != nil {
		return fmt.Errorf("记录操作日志失败: %w", err)
	}
	u.updates = append(u.updates, realtime.OrderUpdate{
		MOID:     u.mo.ID,
		MOCode:   u.mo.MOCode,
		Entity:   entityType,
		EntityID: entityID,
		Action:   action,
		Status:   u.mo.Status,
	})
	return nil
}

// transition 校验并执行MO状态变更
func (u *unit) transition(action engine.OrderAction, data interface{}, comment string) error {
	to, err := engine.NextOrderStatus(u.mo, action)
	if err != nil {
		return err
	}
	return u.moveTo(string(action), to, data, comment)
}

func (u *unit) moveTo(action, to string, data interface{}, comment string) error {
	from := u.mo.Status
	u.mo.Status = to
	if err := u.saveOrder(); err != nil {
		return err
	}
	u.transitions = append(u.transitions, orderTransition{action: action, to: to})
	return u.record(entity.EventEntityOrder, u.mo.MOCode, action, from, to, data, comment)
}

func (u *unit) saveOrder() error {
	if err := u.tx.Order.Save(u.ctx, u.mo); err != nil {
		return fmt.Errorf("更新生产订单失败: %w", err)
	}
	return nil
}

func (u *unit) released(kind string, n int) {
	if u.releases == nil {
		u.releases = make(map[string]int)
	}
	u.releases[kind] += n
}
