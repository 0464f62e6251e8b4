package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestCheckBatchStartSequenceDiscipline(t *testing.T) {
	processes := threeProcesses()
	processes[0].Status = entity.ProcessStatusInProgress
	batch := newBatch("B01", 100, processes, nil)

	require.NoError(t, CheckBatchStart(&batch, &processes[0], nil))

	// 上一道工序未完成，不能开始下一道
	err := CheckBatchStart(&batch, &processes[1], &processes[0])
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	processes[0].Status = entity.ProcessStatusCompleted
	err = CheckBatchStart(&batch, &processes[1], &processes[0])
	require.ErrorIs(t, err, ErrInvalidStateTransition, "batch has not finished the previous process")

	batch.Ledger[0].Status = entity.LedgerCompleted
	require.NoError(t, CheckBatchStart(&batch, &processes[1], &processes[0]), "pending process with completed predecessor starts implicitly")

	batch.Ledger[1].Status = entity.LedgerInProgress
	err = CheckBatchStart(&batch, &processes[1], &processes[0])
	assert.ErrorIs(t, err, ErrInvalidStateTransition, "entry already started")
}

func TestCheckBatchStartBlockedBatch(t *testing.T) {
	processes := threeProcesses()
	processes[0].Status = entity.ProcessStatusInProgress
	batch := newBatch("B01", 100, processes, nil)
	batch.Blocked = true

	var te *TransitionError
	require.ErrorAs(t, CheckBatchStart(&batch, &processes[0], nil), &te)
	assert.Equal(t, "blocked", te.From)
}

func TestCheckBatchStartStragglerAfterAutoComplete(t *testing.T) {
	processes := threeProcesses()
	processes[0].Status = entity.ProcessStatusCompleted
	batch := newBatch("B10", 100, processes, nil)

	require.ErrorIs(t, CheckBatchStart(&batch, &processes[0], nil), ErrInvalidStateTransition)

	processes[0].AutoCompleted = true
	require.NoError(t, CheckBatchStart(&batch, &processes[0], nil))
}

func TestCheckBatchComplete(t *testing.T) {
	processes := threeProcesses()
	batch := newBatch("B01", 100, processes, map[string]string{"pe-1": entity.LedgerInProgress})

	done, err := CheckBatchComplete(&batch, &processes[0], 98.5)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = CheckBatchComplete(&batch, &processes[0], -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	batch.Ledger[0].Status = entity.LedgerCompleted
	done, err = CheckBatchComplete(&batch, &processes[0], 98.5)
	require.NoError(t, err)
	assert.True(t, done, "repeat completion is a replay")

	_, err = CheckBatchComplete(&batch, &processes[1], 10)
	assert.ErrorIs(t, err, ErrInvalidStateTransition, "not started entry cannot complete")

	_, err = CheckBatchComplete(&batch, &entity.ProcessExecution{ID: "pe-x"}, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchStateHelpers(t *testing.T) {
	processes := threeProcesses()
	batch := newBatch("B01", 100, processes, map[string]string{"pe-1": entity.LedgerCompleted, "pe-2": entity.LedgerInProgress})
	assert.True(t, BatchInProgress(&batch))
	assert.False(t, BatchFinished(&batch))

	for i := range batch.Ledger {
		batch.Ledger[i].Status = entity.LedgerCompleted
	}
	assert.False(t, BatchInProgress(&batch))
	assert.True(t, BatchFinished(&batch))
}
