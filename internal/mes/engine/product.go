package engine

import (
	"github.com/shopspring/decimal"
)

// ProcessTemplate BOM中的一道工序模板
type ProcessTemplate struct {
	Name       string   `json:"name"`
	Sequence   int      `json:"sequence"`
	WorkCenter string   `json:"work_center"`
	Weight     float64  `json:"weight"`
	Steps      []string `json:"steps,omitempty"`
}

// ProductSpec 产品BOM：工序模板、单位克重、原料及可用量
type ProductSpec struct {
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	GramsPerUnit float64           `json:"grams_per_unit"`
	Processes    []ProcessTemplate `json:"processes"`
	Materials    []MaterialLine    `json:"materials"`
}

// gramsTolerance 原料克重合计与单位克重允许的舍入误差
var gramsTolerance = decimal.New(1, -6)

// ValidateSpec 工序序号从1连续，原料克重合计等于单位克重
func ValidateSpec(spec *ProductSpec) error {
	fail := func(reason string) error {
		return &InvalidProductSpecError{ProductCode: spec.Code, Reason: reason}
	}
	if spec.GramsPerUnit <= 0 {
		return fail("grams per unit must be positive")
	}
	if len(spec.Processes) == 0 {
		return fail("no process templates")
	}
	for i, p := range spec.Processes {
		if p.Sequence != i+1 {
			return fail("process templates must be sequenced 1..n")
		}
		if p.Name == "" {
			return fail("process template without name")
		}
	}
	if len(spec.Materials) == 0 {
		return fail("no raw materials")
	}
	sum := decimal.Zero
	for _, m := range spec.Materials {
		if m.GramsPerUnit <= 0 {
			return fail("material " + m.Code + " grams per unit must be positive")
		}
		sum = sum.Add(decimal.NewFromFloat(m.GramsPerUnit))
	}
	if sum.Sub(decimal.NewFromFloat(spec.GramsPerUnit)).Abs().GreaterThan(gramsTolerance) {
		return fail("material grams do not add up to grams per unit")
	}
	return nil
}

// TotalAvailableKg 所有原料可用量合计
func (s *ProductSpec) TotalAvailableKg() float64 {
	total := decimal.Zero
	for _, m := range s.Materials {
		total = total.Add(decimal.Max(decimal.Zero, decimal.NewFromFloat(m.AvailableKg)))
	}
	return total.Round(kgPlaces).InexactFloat64()
}
