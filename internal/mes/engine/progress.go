package engine

import (
	"github.com/shopspring/decimal"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

const percentPlaces = 2

// Completion 某道工序按计划重量加权的批次完成情况
type Completion struct {
	ProcessExecutionID string   `json:"process_execution_id"`
	TotalBatches       int      `json:"total_batches"`
	CompletedBatches   int      `json:"completed_batches"`
	TotalPlannedKg     float64  `json:"total_planned_kg"`
	CompletedPlannedKg float64  `json:"completed_planned_kg"`
	Percentage         float64  `json:"percentage"`
	Unfinished         []string `json:"unfinished_batch_ids"`

	ratio decimal.Decimal
}

// AllCompleted 所有批次都已完成（无批次视为已完成）
func (c Completion) AllCompleted() bool {
	return len(c.Unfinished) == 0
}

// ComputeCompletion 汇总批次台账，批次需预加载 Ledger
func ComputeCompletion(processExecutionID string, batches []entity.Batch) Completion {
	c := Completion{ProcessExecutionID: processExecutionID, TotalBatches: len(batches), Unfinished: []string{}}
	total := decimal.Zero
	done := decimal.Zero
	for i := range batches {
		b := &batches[i]
		planned := decimal.NewFromFloat(b.PlannedQuantityKg)
		total = total.Add(planned)
		entry := b.EntryFor(processExecutionID)
		if entry != nil && entry.Status == entity.LedgerCompleted {
			done = done.Add(planned)
			c.CompletedBatches++
			continue
		}
		c.Unfinished = append(c.Unfinished, b.BatchCode)
	}
	c.TotalPlannedKg = total.Round(kgPlaces).InexactFloat64()
	c.CompletedPlannedKg = done.Round(kgPlaces).InexactFloat64()
	if total.IsPositive() {
		c.ratio = done.Div(total)
		c.Percentage = c.ratio.Mul(hundred).Round(percentPlaces).InexactFloat64()
	}
	return c
}

// ReachesThreshold 是否达到自动完工阈值，阈值为0表示关闭自动完工
func (c Completion) ReachesThreshold(threshold float64) bool {
	if threshold <= 0 || c.TotalBatches == 0 {
		return false
	}
	return c.ratio.GreaterThanOrEqual(decimal.NewFromFloat(threshold))
}

// OverallProgress 计算MO总进度
func OverallProgress(processes []entity.ProcessExecution, weighting string) float64 {
	if len(processes) == 0 {
		return 0
	}
	sum := decimal.Zero
	weights := decimal.Zero
	for _, pe := range processes {
		pct := decimal.NewFromFloat(pe.ProgressPercentage)
		if pe.Status == entity.ProcessStatusCompleted {
			pct = hundred
		}
		w := decimal.NewFromInt(1)
		if weighting == ProgressWeightingTemplateWeight && pe.Weight > 0 {
			w = decimal.NewFromFloat(pe.Weight)
		}
		sum = sum.Add(pct.Mul(w))
		weights = weights.Add(w)
	}
	return sum.Div(weights).Round(percentPlaces).InexactFloat64()
}

// MonotonicProgress 生产中进度只增不减
func MonotonicProgress(mo *entity.ManufacturingOrder, computed float64) float64 {
	if mo.Status == entity.MOStatusInProgress && computed < mo.OverallProgress {
		return mo.OverallProgress
	}
	return computed
}
