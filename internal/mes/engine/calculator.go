package engine

import (
	"github.com/shopspring/decimal"
)

// kgPlaces 重量结果保留小数位
const kgPlaces = 4

var (
	thousand = decimal.NewFromInt(1000)
	hundred  = decimal.NewFromInt(100)
)

// Requirement 原料需求计算结果
type Requirement struct {
	Quantity            int     `json:"quantity"`
	LooseFGUsed         int     `json:"loose_fg_used"`
	ManufactureQuantity int     `json:"manufacture_quantity"`
	BaseKg              float64 `json:"base_kg"`
	RequiredKg          float64 `json:"required_kg"`
	AvailableKg         float64 `json:"available_kg"`
	ShortageKg          float64 `json:"shortage_kg"`
}

// Err 有缺料时返回 InsufficientStockError
func (r Requirement) Err() error {
	if r.ShortageKg <= 0 {
		return nil
	}
	return &InsufficientStockError{
		RequiredKg:  r.RequiredKg,
		AvailableKg: r.AvailableKg,
		ShortageKg:  r.ShortageKg,
	}
}

// NeedsRM 散货成品已覆盖全部需求时无需预留原料
func (r Requirement) NeedsRM() bool {
	return r.ManufactureQuantity > 0
}

func toleranceFactor(tolerancePercent float64) decimal.Decimal {
	return decimal.NewFromInt(1).Add(decimal.NewFromFloat(tolerancePercent).Div(hundred))
}

func validateDemand(quantity int, tolerancePercent float64, looseFgAvailable int) error {
	if quantity < 0 {
		return invalid("quantity", "must be non-negative, got %d", quantity)
	}
	if tolerancePercent < 0 || tolerancePercent > 100 {
		return invalid("tolerance_percentage", "must be within [0, 100], got %v", tolerancePercent)
	}
	if looseFgAvailable < 0 {
		return invalid("loose_fg_available", "must be non-negative, got %d", looseFgAvailable)
	}
	return nil
}

// ComputeRequirement 根据单位克重、容差和散货成品库存计算原料需求与缺口
func ComputeRequirement(quantity int, gramsPerUnit, tolerancePercent float64, looseFgAvailable int, totalAvailableRmKg float64) (Requirement, error) {
	if gramsPerUnit <= 0 {
		return Requirement{}, &InvalidProductSpecError{Reason: "grams per unit must be positive"}
	}
	if err := validateDemand(quantity, tolerancePercent, looseFgAvailable); err != nil {
		return Requirement{}, err
	}
	if totalAvailableRmKg < 0 {
		totalAvailableRmKg = 0
	}

	req := Requirement{Quantity: quantity, AvailableKg: totalAvailableRmKg}
	req.LooseFGUsed = min(quantity, looseFgAvailable)
	req.ManufactureQuantity = quantity - req.LooseFGUsed
	if req.ManufactureQuantity == 0 {
		return req, nil
	}

	base := decimal.NewFromInt(int64(req.ManufactureQuantity)).
		Mul(decimal.NewFromFloat(gramsPerUnit)).
		Div(thousand)
	required := base.Mul(toleranceFactor(tolerancePercent))
	shortage := decimal.Max(decimal.Zero, required.Sub(decimal.NewFromFloat(totalAvailableRmKg)))

	req.BaseKg = base.Round(kgPlaces).InexactFloat64()
	req.RequiredKg = required.Round(kgPlaces).InexactFloat64()
	req.ShortageKg = shortage.Round(kgPlaces).InexactFloat64()
	return req, nil
}

// MaterialLine BOM中的一行原料
type MaterialLine struct {
	Code         string
	GramsPerUnit float64
	AvailableKg  float64
}

// MaterialRequirement 单个原料的需求
type MaterialRequirement struct {
	Code        string  `json:"material_code"`
	RequiredKg  float64 `json:"required_kg"`
	AvailableKg float64 `json:"available_kg"`
	ShortageKg  float64 `json:"shortage_kg"`
}

// ComputeMaterialSplit 按原料行拆分需求量
func ComputeMaterialSplit(manufactureQuantity int, tolerancePercent float64, lines []MaterialLine) ([]MaterialRequirement, error) {
	if err := validateDemand(manufactureQuantity, tolerancePercent, 0); err != nil {
		return nil, err
	}
	factor := toleranceFactor(tolerancePercent)
	out := make([]MaterialRequirement, 0, len(lines))
	for _, line := range lines {
		if line.GramsPerUnit <= 0 {
			return nil, &InvalidProductSpecError{Reason: "material " + line.Code + " grams per unit must be positive"}
		}
		required := decimal.NewFromInt(int64(manufactureQuantity)).
			Mul(decimal.NewFromFloat(line.GramsPerUnit)).
			Div(thousand).
			Mul(factor)
		available := decimal.Max(decimal.Zero, decimal.NewFromFloat(line.AvailableKg))
		out = append(out, MaterialRequirement{
			Code:        line.Code,
			RequiredKg:  required.Round(kgPlaces).InexactFloat64(),
			AvailableKg: available.Round(kgPlaces).InexactFloat64(),
			ShortageKg:  decimal.Max(decimal.Zero, required.Sub(available)).Round(kgPlaces).InexactFloat64(),
		})
	}
	return out, nil
}

// FirstShortage 返回第一个缺料的原料错误
func FirstShortage(reqs []MaterialRequirement) error {
	for _, r := range reqs {
		if r.ShortageKg > 0 {
			return &InsufficientStockError{
				Reference:   r.Code,
				RequiredKg:  r.RequiredKg,
				AvailableKg: r.AvailableKg,
				ShortageKg:  r.ShortageKg,
			}
		}
	}
	return nil
}

// FulfillableQuantity 现有原料加散货成品最多能满足的数量
func FulfillableQuantity(lines []MaterialLine, tolerancePercent float64, looseFgAvailable int) int {
	factor := toleranceFactor(tolerancePercent)
	best := int64(-1)
	for _, line := range lines {
		if line.GramsPerUnit <= 0 {
			return looseFgAvailable
		}
		perUnitKg := decimal.NewFromFloat(line.GramsPerUnit).Div(thousand).Mul(factor)
		available := decimal.Max(decimal.Zero, decimal.NewFromFloat(line.AvailableKg))
		units := available.Div(perUnitKg).Floor().IntPart()
		if best < 0 || units < best {
			best = units
		}
	}
	if best < 0 {
		best = 0
	}
	return int(best) + looseFgAvailable
}
