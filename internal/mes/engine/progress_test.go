package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestComputeCompletionReachesThreshold(t *testing.T) {
	processes := threeProcesses()
	var batches []entity.Batch
	for i := 1; i <= 10; i++ {
		status := entity.LedgerCompleted
		if i == 10 {
			status = entity.LedgerInProgress
		}
		batches = append(batches, newBatch(fmt.Sprintf("MO-1-B%02d", i), 100, processes, map[string]string{"pe-1": status}))
	}

	c := ComputeCompletion("pe-1", batches)
	assert.Equal(t, 10, c.TotalBatches)
	assert.Equal(t, 9, c.CompletedBatches)
	assert.InDelta(t, 90.0, c.Percentage, 1e-9)
	assert.Equal(t, []string{"MO-1-B10"}, c.Unfinished)
	assert.False(t, c.AllCompleted())
	assert.True(t, c.ReachesThreshold(0.90))
	assert.False(t, c.ReachesThreshold(0.95))
	assert.False(t, c.ReachesThreshold(0), "zero threshold disables auto completion")
}

func TestComputeCompletionWeightsByPlannedQuantity(t *testing.T) {
	processes := threeProcesses()
	batches := []entity.Batch{
		newBatch("B01", 900, processes, map[string]string{"pe-1": entity.LedgerCompleted}),
		newBatch("B02", 50, processes, nil),
		newBatch("B03", 50, processes, nil),
	}

	c := ComputeCompletion("pe-1", batches)
	// 一个批次按数量是1/3，按计划重量是90%
	assert.Equal(t, 1, c.CompletedBatches)
	assert.InDelta(t, 90.0, c.Percentage, 1e-9)
	assert.True(t, c.ReachesThreshold(0.9))
}

func TestComputeCompletionWithoutBatches(t *testing.T) {
	c := ComputeCompletion("pe-1", nil)
	assert.True(t, c.AllCompleted())
	assert.Zero(t, c.Percentage)
	assert.False(t, c.ReachesThreshold(0.5))
}

func TestOverallProgress(t *testing.T) {
	processes := threeProcesses()
	processes[0].Status = entity.ProcessStatusCompleted
	processes[0].ProgressPercentage = 90
	processes[1].Status = entity.ProcessStatusInProgress
	processes[1].ProgressPercentage = 50

	// 已完成工序按100计
	assert.InDelta(t, 50.0, OverallProgress(processes, ProgressWeightingEqual), 1e-9)
	// (100*1 + 50*2 + 0*1) / 4
	assert.InDelta(t, 50.0, OverallProgress(processes, ProgressWeightingTemplateWeight), 1e-9)

	processes[1].ProgressPercentage = 80
	assert.InDelta(t, 60.0, OverallProgress(processes, ProgressWeightingEqual), 1e-9)
	assert.InDelta(t, 65.0, OverallProgress(processes, ProgressWeightingTemplateWeight), 1e-9)

	assert.Zero(t, OverallProgress(nil, ProgressWeightingEqual))
}

func TestMonotonicProgress(t *testing.T) {
	mo := &entity.ManufacturingOrder{Status: entity.MOStatusInProgress, OverallProgress: 40}
	assert.Equal(t, 40.0, MonotonicProgress(mo, 30))
	assert.Equal(t, 55.0, MonotonicProgress(mo, 55))

	mo.Status = entity.MOStatusStopped
	assert.Equal(t, 30.0, MonotonicProgress(mo, 30))
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.AutoCompleteThreshold = 1.2
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.ProgressWeighting = "by_duration"
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.AutoCompleteThreshold = 0
	assert.NoError(t, p.Validate())
}
