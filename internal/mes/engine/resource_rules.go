package engine

import (
	"github.com/shopspring/decimal"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// rmRoundingSlack 各原料需求分别保留4位小数，合计允许的舍入误差
var rmRoundingSlack = decimal.New(5, -4)

// RMCap MO可占用原料上限：rm_required_kg * (1 + tolerance)
func RMCap(mo *entity.ManufacturingOrder) decimal.Decimal {
	return decimal.NewFromFloat(mo.RMRequiredKg).Mul(toleranceFactor(mo.TolerancePercentage))
}

// ActiveRMKg 当前有效的原料预留+锁定总量
func ActiveRMKg(entries []entity.ResourceEntry) decimal.Decimal {
	total := decimal.Zero
	for i := range entries {
		e := &entries[i]
		if e.Status == entity.ResourceStatusActive && e.IsRM() {
			total = total.Add(decimal.NewFromFloat(e.Quantity))
		}
	}
	return total
}

// UnitFor 台账类型对应的单位
func UnitFor(kind string) (string, error) {
	switch kind {
	case entity.ResourceReservedRM, entity.ResourceLockedRM:
		return entity.UnitKg, nil
	case entity.ResourceReservedFG:
		return entity.UnitUnits, nil
	}
	return "", invalid("kind", "unknown resource kind %q", kind)
}

// CheckReserve 校验新增预留不超过上限
func CheckReserve(mo *entity.ManufacturingOrder, active []entity.ResourceEntry, kind string, quantity float64, reference string) error {
	if _, err := UnitFor(kind); err != nil {
		return err
	}
	if quantity <= 0 {
		return invalid("quantity", "must be positive, got %v", quantity)
	}
	if reference == "" {
		return invalid("reference", "material or product reference is required")
	}
	if mo.IsTerminal() {
		return &TransitionError{Entity: "manufacturing order", ID: mo.MOCode, From: mo.Status, Action: "reserve " + kind}
	}
	if kind == entity.ResourceReservedFG {
		if quantity > float64(mo.Quantity) {
			return invalid("quantity", "fg reservation %v exceeds order quantity %d", quantity, mo.Quantity)
		}
		return nil
	}
	limit := RMCap(mo)
	after := ActiveRMKg(active).Add(decimal.NewFromFloat(quantity))
	if after.GreaterThan(limit.Add(rmRoundingSlack)) {
		return invalid("quantity", "rm reservations %.4f kg would exceed cap %.4f kg",
			after.InexactFloat64(), limit.InexactFloat64())
	}
	return nil
}

// CheckLock 只有有效的原料预留可以转为锁定
func CheckLock(entry *entity.ResourceEntry) error {
	if entry.Status != entity.ResourceStatusActive || entry.Kind != entity.ResourceReservedRM {
		return &TransitionError{Entity: "resource entry", ID: entry.ID, From: entry.Kind + "/" + entry.Status, Action: "lock"}
	}
	return nil
}

// CheckRelease 已释放的台账不可重复释放
func CheckRelease(entry *entity.ResourceEntry) error {
	if entry.Status != entity.ResourceStatusActive {
		return &TransitionError{Entity: "resource entry", ID: entry.ID, From: entry.Status, Action: "release"}
	}
	return nil
}
