package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/report"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
)

func TestCheckRequirement(t *testing.T) {
	f := newFixture(t)

	rep, err := f.svc.Stock.CheckRequirement(f.ctx, productCode, 1000, 5)
	require.NoError(t, err)
	assert.Equal(t, 200, rep.Requirement.LooseFGUsed)
	assert.Equal(t, 800, rep.Requirement.ManufactureQuantity)
	assert.InDelta(t, 42.0, rep.Requirement.RequiredKg, 1e-9)
	assert.Len(t, rep.Materials, 2)
	// ASC-ACID 每单位 0.042kg：floor(1000/0.042)=23809，加散货 200
	assert.Equal(t, 24009, rep.Fulfillable)

	// 试算不产生任何MO或台账
	queue, err := f.svc.Queue.ListQueue(f.ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, queue)

	_, err = f.svc.Stock.CheckRequirement(f.ctx, "NOPE", 10, 0)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = f.svc.Stock.CheckRequirement(f.ctx, productCode, 0, 0)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestProductsAndDrafts(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Stock.GetProduct(f.ctx, productCode)
	require.NoError(t, err)
	assert.Len(t, p.Processes, 3)
	assert.InDelta(t, 50.0, p.GramsPerUnit, 1e-9)

	products, err := f.svc.Stock.ListProducts(f.ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)

	setStock(t, f, "ASC-ACID", 20)
	setLooseFG(t, f, 0)
	res, err := f.svc.Order.Create(f.ctx, planner, CreateOrderRequest{ProductCode: productCode, Quantity: 1000, OnShortage: OnShortageDraftPO})
	require.NoError(t, err)
	require.Len(t, res.PurchaseDrafts, 1)

	all, err := f.svc.Stock.ListPurchaseDrafts(f.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	mine, err := f.svc.Stock.ListPurchaseDrafts(f.ctx, res.Order.MOCode)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "ASC-ACID", mine[0].MaterialCode)
}

type memArchiver struct {
	name string
	data []byte
}

func (a *memArchiver) Archive(_ context.Context, objectName, _ string, data []byte) (string, error) {
	a.name = objectName
	a.data = data
	return "reports/" + objectName, nil
}

func TestExportAndArchiveOrder(t *testing.T) {
	f := newFixture(t)
	mo := f.allocated()

	data, name, err := f.svc.Report.ExportOrder(f.ctx, mo.MOCode)
	require.NoError(t, err)
	assert.Equal(t, "MO_"+mo.MOCode+".xlsx", name)
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	code, err := wb.GetCellValue(report.SheetOrder, "B1")
	require.NoError(t, err)
	assert.Equal(t, mo.MOCode, code)

	_, err = f.svc.Report.ArchiveOrder(f.ctx, mo.ID)
	assert.ErrorIs(t, err, ErrArchiveDisabled)

	arch := &memArchiver{}
	f2 := newFixture(t, func(o *Options) { o.Archiver = arch })
	mo2 := f2.createOrder()
	path, err := f2.svc.Report.ArchiveOrder(f2.ctx, mo2.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(arch.name, "mo-reports/"))
	assert.True(t, strings.HasSuffix(path, "MO_"+mo2.MOCode+".xlsx"))
	assert.NotEmpty(t, arch.data)

	_, _, err = f.svc.Report.ExportOrder(f.ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestActorMergesRoleGrants(t *testing.T) {
	f := newFixture(t)
	testutil.SeedRoleGrant(t, f.db, "u-1", engine.RoleSupervisor, "WC-Mixing")
	testutil.SeedRoleGrant(t, f.db, "u-1", engine.RolePlanner, "")

	actor, err := f.svc.Actor(f.ctx, "u-1", []string{engine.RolePlanner})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{engine.RolePlanner, engine.RoleSupervisor}, actor.Roles)

	anon, err := f.svc.Actor(f.ctx, "", []string{engine.RoleGM})
	require.NoError(t, err)
	assert.Equal(t, []string{engine.RoleGM}, anon.Roles)
}
