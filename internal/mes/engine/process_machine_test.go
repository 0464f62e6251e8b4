package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestCheckProcessStartRequiresPredecessor(t *testing.T) {
	processes := threeProcesses()

	require.NoError(t, CheckProcessStart(processes, &processes[0]))
	require.ErrorIs(t, CheckProcessStart(processes, &processes[1]), ErrInvalidStateTransition)

	processes[0].Status = entity.ProcessStatusInProgress
	require.ErrorIs(t, CheckProcessStart(processes, &processes[0]), ErrInvalidStateTransition)
	require.ErrorIs(t, CheckProcessStart(processes, &processes[1]), ErrInvalidStateTransition)

	processes[0].Status = entity.ProcessStatusCompleted
	require.NoError(t, CheckProcessStart(processes, &processes[1]))
	require.ErrorIs(t, CheckProcessStart(processes, &processes[2]), ErrInvalidStateTransition)
}

func TestCheckProcessCompleteChecksStepsBeforeBatches(t *testing.T) {
	processes := threeProcesses()
	pe := &processes[0]
	pe.Status = entity.ProcessStatusInProgress
	pe.Steps = []entity.ProcessStep{
		{ID: "s1", Status: entity.StepStatusCompleted},
		{ID: "s2", Status: entity.StepStatusPending},
	}
	batches := []entity.Batch{
		newBatch("B01", 10, processes, map[string]string{"pe-1": entity.LedgerCompleted}),
		newBatch("B02", 10, processes, nil),
	}
	completion := ComputeCompletion(pe.ID, batches)

	err := CheckProcessComplete(pe, completion)
	var stepsErr *StepsIncompleteError
	require.ErrorAs(t, err, &stepsErr)
	assert.Equal(t, 1, stepsErr.Count)

	pe.Steps[1].Status = entity.StepStatusCompleted
	err = CheckProcessComplete(pe, completion)
	var batchErr *BatchesIncompleteError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []string{"B02"}, batchErr.BatchIDs)
	assert.ErrorIs(t, err, ErrBatchesIncomplete)

	batches[1].Ledger[0].Status = entity.LedgerCompleted
	require.NoError(t, CheckProcessComplete(pe, ComputeCompletion(pe.ID, batches)))
}

func TestCheckProcessCompleteRequiresInProgress(t *testing.T) {
	pe := &entity.ProcessExecution{ID: "pe-1", Status: entity.ProcessStatusPending}
	err := CheckProcessComplete(pe, Completion{})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSequenceHelpers(t *testing.T) {
	processes := threeProcesses()
	processes[0], processes[2] = processes[2], processes[0]
	SortProcesses(processes)
	require.NoError(t, ValidateSequence(processes))
	assert.Nil(t, Predecessor(processes, &processes[0]))
	assert.Equal(t, "pe-2", Predecessor(processes, &processes[2]).ID)

	assert.Nil(t, ActiveProcess(processes))
	processes[1].Status = entity.ProcessStatusInProgress
	assert.Equal(t, "pe-2", ActiveProcess(processes).ID)

	assert.False(t, AllProcessesCompleted(nil))
	for i := range processes {
		processes[i].Status = entity.ProcessStatusCompleted
	}
	assert.True(t, AllProcessesCompleted(processes))

	gap := []entity.ProcessExecution{{SequenceOrder: 1}, {SequenceOrder: 3}}
	assert.ErrorIs(t, ValidateSequence(gap), ErrInvalidInput)
}
