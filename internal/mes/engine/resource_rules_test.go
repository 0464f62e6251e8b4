package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestRMCap(t *testing.T) {
	mo := &entity.ManufacturingOrder{RMRequiredKg: 42, TolerancePercentage: 5}
	assert.InDelta(t, 44.1, RMCap(mo).InexactFloat64(), 1e-9)
}

func TestCheckReserveEnforcesCap(t *testing.T) {
	mo := &entity.ManufacturingOrder{MOCode: "MO-1", Status: entity.MOStatusGMApproved, Quantity: 1000, RMRequiredKg: 42, TolerancePercentage: 5}
	active := []entity.ResourceEntry{
		{Kind: entity.ResourceReservedRM, Quantity: 30, Status: entity.ResourceStatusActive},
		{Kind: entity.ResourceLockedRM, Quantity: 12, Status: entity.ResourceStatusActive},
		{Kind: entity.ResourceReservedRM, Quantity: 50, Status: entity.ResourceStatusReleased},
		{Kind: entity.ResourceReservedFG, Quantity: 200, Status: entity.ResourceStatusActive},
	}
	assert.InDelta(t, 42.0, ActiveRMKg(active).InexactFloat64(), 1e-9)

	require.NoError(t, CheckReserve(mo, active, entity.ResourceReservedRM, 2.1, "RM-A"))
	assert.ErrorIs(t, CheckReserve(mo, active, entity.ResourceReservedRM, 2.2, "RM-A"), ErrInvalidInput)

	assert.ErrorIs(t, CheckReserve(mo, nil, entity.ResourceReservedRM, 0, "RM-A"), ErrInvalidInput)
	assert.ErrorIs(t, CheckReserve(mo, nil, "reserved_gold", 1, "RM-A"), ErrInvalidInput)
	assert.ErrorIs(t, CheckReserve(mo, nil, entity.ResourceReservedRM, 1, ""), ErrInvalidInput)

	require.NoError(t, CheckReserve(mo, active, entity.ResourceReservedFG, 1000, "FG-1"))
	assert.ErrorIs(t, CheckReserve(mo, active, entity.ResourceReservedFG, 1001, "FG-1"), ErrInvalidInput)

	mo.Status = entity.MOStatusCancelled
	assert.ErrorIs(t, CheckReserve(mo, nil, entity.ResourceReservedRM, 1, "RM-A"), ErrInvalidStateTransition)
}

func TestCheckLockAndRelease(t *testing.T) {
	reserved := &entity.ResourceEntry{ID: "r1", Kind: entity.ResourceReservedRM, Status: entity.ResourceStatusActive}
	require.NoError(t, CheckLock(reserved))
	require.NoError(t, CheckRelease(reserved))

	locked := &entity.ResourceEntry{ID: "r2", Kind: entity.ResourceLockedRM, Status: entity.ResourceStatusActive}
	assert.ErrorIs(t, CheckLock(locked), ErrInvalidStateTransition)

	released := &entity.ResourceEntry{ID: "r3", Kind: entity.ResourceReservedRM, Status: entity.ResourceStatusReleased}
	assert.ErrorIs(t, CheckLock(released), ErrInvalidStateTransition)
	assert.ErrorIs(t, CheckRelease(released), ErrInvalidStateTransition)

	unit, err := UnitFor(entity.ResourceReservedFG)
	require.NoError(t, err)
	assert.Equal(t, entity.UnitUnits, unit)
}
