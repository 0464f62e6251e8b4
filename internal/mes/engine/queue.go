package engine

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// QueueStatuses 优先级队列中的活动状态
var QueueStatuses = []string{
	entity.MOStatusOnHold,
	entity.MOStatusRMAllocated,
	entity.MOStatusInProgress,
	entity.MOStatusSubmitted,
}

// NormalizeQueueFilter 过滤条件只能是活动状态的子集，空表示全部
func NormalizeQueueFilter(filter []string) ([]string, error) {
	if len(filter) == 0 {
		return QueueStatuses, nil
	}
	out := make([]string, 0, len(filter))
	for _, s := range filter {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ok := false
		for _, q := range QueueStatuses {
			if q == s {
				ok = true
				break
			}
		}
		if !ok {
			return nil, invalid("status", "%q is not a queue status", s)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return QueueStatuses, nil
	}
	return out, nil
}

// SortQueue priority_level 降序，planned_start_date 升序（空值排后），再按创建时间稳定排序
func SortQueue(mos []entity.ManufacturingOrder) {
	sort.SliceStable(mos, func(i, j int) bool {
		a, b := &mos[i], &mos[j]
		if a.PriorityLevel != b.PriorityLevel {
			return a.PriorityLevel > b.PriorityLevel
		}
		switch {
		case a.PlannedStartDate == nil && b.PlannedStartDate != nil:
			return false
		case a.PlannedStartDate != nil && b.PlannedStartDate == nil:
			return true
		case a.PlannedStartDate != nil && b.PlannedStartDate != nil && !a.PlannedStartDate.Equal(*b.PlannedStartDate):
			return a.PlannedStartDate.Before(*b.PlannedStartDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// CanBeStopped 只有已分配原料或生产中的MO可以停产
func CanBeStopped(mo *entity.ManufacturingOrder) bool {
	return mo.Status == entity.MOStatusRMAllocated || mo.Status == entity.MOStatusInProgress
}

// ValidateStopReason 停产原因去除首尾空白后至少 minLen 个字符
func ValidateStopReason(reason string, minLen int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(reason))
	if n < minLen {
		return invalid("reason", "must be at least %d characters, got %d", minLen, n)
	}
	return nil
}

// BatchImpact 停产时批次的影响
type BatchImpact struct {
	BatchID    string  `json:"batch_id"`
	PlannedKg  float64 `json:"planned_quantity"`
	InProcess  string  `json:"in_process,omitempty"`
	NextAction string  `json:"next_action"`
}

// StopImpact 停产影响预览
type StopImpact struct {
	MOID              string        `json:"mo_id"`
	CanBeStopped      bool          `json:"can_be_stopped"`
	ReservedRMKg      float64       `json:"reserved_rm_kg"`
	LockedRMKg        float64       `json:"locked_rm_kg"`
	ReservedFGUnits   float64       `json:"reserved_fg_units"`
	EntriesToRelease  int           `json:"entries_to_release"`
	ContinuingBatches []BatchImpact `json:"in_progress_batches"`
	BlockedBatches    []BatchImpact `json:"pending_batches"`
}

// BuildStopImpact 在提交停产前计算资源与批次影响
func BuildStopImpact(mo *entity.ManufacturingOrder, entries []entity.ResourceEntry, batches []entity.Batch, processes []entity.ProcessExecution) StopImpact {
	impact := StopImpact{
		MOID:              mo.MOCode,
		CanBeStopped:      CanBeStopped(mo),
		ContinuingBatches: []BatchImpact{},
		BlockedBatches:    []BatchImpact{},
	}
	reserved, locked, fg := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range entries {
		e := &entries[i]
		if e.Status != entity.ResourceStatusActive {
			continue
		}
		impact.EntriesToRelease++
		q := decimal.NewFromFloat(e.Quantity)
		switch e.Kind {
		case entity.ResourceReservedRM:
			reserved = reserved.Add(q)
		case entity.ResourceLockedRM:
			locked = locked.Add(q)
		case entity.ResourceReservedFG:
			fg = fg.Add(q)
		}
	}
	impact.ReservedRMKg = reserved.Round(kgPlaces).InexactFloat64()
	impact.LockedRMKg = locked.Round(kgPlaces).InexactFloat64()
	impact.ReservedFGUnits = fg.InexactFloat64()

	names := make(map[string]string, len(processes))
	for _, pe := range processes {
		names[pe.ID] = pe.ProcessName
	}
	for i := range batches {
		b := &batches[i]
		if BatchFinished(b) {
			continue
		}
		bi := BatchImpact{BatchID: b.BatchCode, PlannedKg: b.PlannedQuantityKg}
		if BatchInProgress(b) {
			for _, e := range b.Ledger {
				if e.Status == entity.LedgerInProgress {
					bi.InProcess = names[e.ProcessExecutionID]
					break
				}
			}
			bi.NextAction = "continue_to_completion"
			impact.ContinuingBatches = append(impact.ContinuingBatches, bi)
			continue
		}
		bi.NextAction = "blocked"
		impact.BlockedBatches = append(impact.BlockedBatches, bi)
	}
	return impact
}
