package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
)

const productCode = "VC-500"

var (
	manager = engine.Actor{UserID: "mgr-1", Roles: []string{
		engine.RoleManager, engine.RoleProductionHead, engine.RoleGM, engine.RoleStoreManager, engine.RolePlanner,
	}}
	planner = engine.Actor{UserID: "planner-1", Roles: []string{engine.RolePlanner}}
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	repos *repository.Repositories
	svc   *Services
}

// newFixture 产品 VC-500：三道工序，两种原料合计 50g/单位，原料各 1000kg，散货成品 200
func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.SeedProduct(t, db, productCode, []string{"Mixing", "Tableting", "Packing"}, map[string]float64{
		"ASC-ACID": 40,
		"BINDER":   10,
	})
	testutil.SeedRawMaterial(t, db, "ASC-ACID", 1000)
	testutil.SeedRawMaterial(t, db, "BINDER", 1000)
	testutil.SeedFGStock(t, db, productCode, 200)

	o := Options{}
	for _, fn := range opts {
		fn(&o)
	}
	repos := repository.NewRepositories(db)
	return &fixture{t: t, ctx: context.Background(), db: db, repos: repos, svc: NewServices(repos, o)}
}

func withPolicy(p engine.Policy) func(*Options) {
	return func(o *Options) { o.Policy = p }
}

func withLocker(l lock.Locker) func(*Options) {
	return func(o *Options) { o.Locker = l }
}

// recordingLocker 记录加锁顺序
type recordingLocker struct {
	lock.Locker
	mu   sync.Mutex
	keys []string
}

func newRecordingLocker() *recordingLocker {
	return &recordingLocker{Locker: lock.NewLocalLocker()}
}

func (l *recordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.Locker.Lock(ctx, key)
}

func (l *recordingLocker) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := l.keys
	l.keys = nil
	return keys
}

// createOrder 1000 单位、容差 5%：生产 800，原料 42kg
func (f *fixture) createOrder() *entity.ManufacturingOrder {
	f.t.Helper()
	res, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{
		ProductCode:         productCode,
		Quantity:            1000,
		TolerancePercentage: 5,
		Priority:            entity.PriorityHigh,
	})
	require.NoError(f.t, err)
	return res.Order
}

// allocated 推进到 rm_allocated
func (f *fixture) allocated() *entity.ManufacturingOrder {
	f.t.Helper()
	mo := f.createOrder()
	_, err := f.svc.Order.Submit(f.ctx, planner, mo.ID)
	require.NoError(f.t, err)
	_, err = f.svc.Order.GMApprove(f.ctx, manager, mo.ID, "")
	require.NoError(f.t, err)
	mo, err = f.svc.Order.AllocateRM(f.ctx, manager, mo.ID)
	require.NoError(f.t, err)
	return mo
}

// inProgress 推进到生产中并登记批次
func (f *fixture) inProgress(plannedKg ...float64) (*entity.ManufacturingOrder, []entity.ProcessExecution, []entity.Batch) {
	f.t.Helper()
	mo := f.allocated()
	mo, err := f.svc.Order.Approve(f.ctx, manager, mo.ID, ApproveRequest{Notes: "ok"})
	require.NoError(f.t, err)
	var batches []entity.Batch
	if len(plannedKg) > 0 {
		batches, err = f.svc.Batch.CreateBatches(f.ctx, manager, mo.ID, plannedKg)
		require.NoError(f.t, err)
	}
	processes, err := f.svc.Process.List(f.ctx, mo.ID)
	require.NoError(f.t, err)
	return mo, processes, batches
}

func (f *fixture) order(id string) *entity.ManufacturingOrder {
	f.t.Helper()
	mo, err := f.svc.Order.Get(f.ctx, id)
	require.NoError(f.t, err)
	return mo
}

func (f *fixture) process(id string) *entity.ProcessExecution {
	f.t.Helper()
	pe, err := f.svc.Process.Get(f.ctx, id)
	require.NoError(f.t, err)
	return pe
}

func (f *fixture) activeEntries(moID string) []entity.ResourceEntry {
	f.t.Helper()
	entries, err := f.svc.Ledger.List(f.ctx, moID, true)
	require.NoError(f.t, err)
	return entries
}

// runBatch 开始并完成批次在某道工序上的生产
func (f *fixture) runBatch(batchID, peID string, qty float64) *CompletionResult {
	f.t.Helper()
	_, err := f.svc.Batch.StartBatchProcess(f.ctx, manager, batchID, peID)
	require.NoError(f.t, err)
	res, err := f.svc.Batch.CompleteBatchProcess(f.ctx, manager, batchID, peID, qty)
	require.NoError(f.t, err)
	return res
}

func countKind(entries []entity.ResourceEntry, kind string) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
