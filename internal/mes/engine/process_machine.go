package engine

import (
	"sort"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// SortProcesses 按 sequence_order 升序
func SortProcesses(processes []entity.ProcessExecution) {
	sort.SliceStable(processes, func(i, j int) bool {
		return processes[i].SequenceOrder < processes[j].SequenceOrder
	})
}

// Predecessor 返回上一道工序，第一道返回nil。processes 需已排序
func Predecessor(processes []entity.ProcessExecution, pe *entity.ProcessExecution) *entity.ProcessExecution {
	var prev *entity.ProcessExecution
	for i := range processes {
		if processes[i].SequenceOrder >= pe.SequenceOrder {
			break
		}
		prev = &processes[i]
	}
	return prev
}

// ValidateSequence sequence_order 必须从1开始连续
func ValidateSequence(processes []entity.ProcessExecution) error {
	for i, pe := range processes {
		if pe.SequenceOrder != i+1 {
			return invalid("sequence_order", "process %q has sequence %d, expected %d", pe.ProcessName, pe.SequenceOrder, i+1)
		}
	}
	return nil
}

// CheckProcessStart 只能从 pending 启动，且上一道工序已完成，保证同时只有一道工序在生产
func CheckProcessStart(processes []entity.ProcessExecution, pe *entity.ProcessExecution) error {
	if pe.Status != entity.ProcessStatusPending {
		return &TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "start"}
	}
	if prev := Predecessor(processes, pe); prev != nil && prev.Status != entity.ProcessStatusCompleted {
		return &TransitionError{
			Entity: "process execution",
			ID:     pe.ID,
			From:   pe.Status,
			Action: "start before " + prev.ProcessName + " is completed",
		}
	}
	return nil
}

// CheckProcessComplete 依次校验：状态、子步骤、全部批次
func CheckProcessComplete(pe *entity.ProcessExecution, completion Completion) error {
	if pe.Status != entity.ProcessStatusInProgress {
		return &TransitionError{Entity: "process execution", ID: pe.ID, From: pe.Status, Action: "complete"}
	}
	pendingSteps := 0
	for _, st := range pe.Steps {
		if st.Status != entity.StepStatusCompleted {
			pendingSteps++
		}
	}
	if pendingSteps > 0 {
		return &StepsIncompleteError{ProcessExecutionID: pe.ID, Count: pendingSteps}
	}
	if !completion.AllCompleted() {
		return &BatchesIncompleteError{ProcessExecutionID: pe.ID, BatchIDs: completion.Unfinished}
	}
	return nil
}

// ActiveProcess 当前生产中的工序
func ActiveProcess(processes []entity.ProcessExecution) *entity.ProcessExecution {
	for i := range processes {
		if processes[i].Status == entity.ProcessStatusInProgress {
			return &processes[i]
		}
	}
	return nil
}

// AllProcessesCompleted 全部工序完成（无工序时返回false）
func AllProcessesCompleted(processes []entity.ProcessExecution) bool {
	if len(processes) == 0 {
		return false
	}
	for _, pe := range processes {
		if pe.Status != entity.ProcessStatusCompleted {
			return false
		}
	}
	return true
}
