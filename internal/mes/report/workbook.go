// Package report 生产订单 Excel 导出
package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// ContentType xlsx 的 MIME 类型
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// 工作表名称
const (
	SheetOrder     = "订单"
	SheetProcesses = "工序"
	SheetBatches   = "批次"
	SheetLedger    = "资源台账"
	SheetEvents    = "操作日志"
)

const timeLayout = "2006-01-02 15:04:05"

// OrderData 导出内容。Order 需预加载工序与批次台账
type OrderData struct {
	Order     *entity.ManufacturingOrder
	Resources []entity.ResourceEntry
	Events    []entity.MOEvent
	Drafts    []entity.PurchaseDraft
}

var (
	processHeaders = []string{"顺序", "工序", "工作中心", "状态", "进度(%)", "自动完成", "主管", "开始时间", "结束时间"}
	batchHeaders   = []string{"批次", "计划重量(kg)", "实际完成(kg)", "冻结"}
	ledgerHeaders  = []string{"类型", "物料/产品", "数量", "单位", "状态", "创建人", "锁定时间", "释放人", "释放时间"}
	eventHeaders   = []string{"时间", "对象", "对象ID", "动作", "原状态", "新状态", "操作人", "备注"}
)

// Filename 导出文件名
func Filename(mo *entity.ManufacturingOrder) string {
	return fmt.Sprintf("MO_%s.xlsx", mo.MOCode)
}

// OrderWorkbook 生成MO工作簿：订单概况、工序、批次（每道工序一列）、资源台账、操作日志
func OrderWorkbook(data OrderData) (*excelize.File, error) {
	if data.Order == nil {
		return nil, fmt.Errorf("order is required")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetOrder); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetProcesses, SheetBatches, SheetLedger, SheetEvents} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &writer{f: f, header: headerStyle}
	w.order(data.Order, data.Drafts)
	w.processes(data.Order.Processes)
	w.batches(data.Order.Batches, data.Order.Processes)
	w.ledger(data.Resources)
	w.events(data.Events)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// writer 记录第一个写入错误，后续写入跳过
type writer struct {
	f      *excelize.File
	header int
	err    error
}

func (w *writer) set(sheet string, col, row int, v interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellValue(sheet, cell, v)
}

func (w *writer) headers(sheet string, headers []string, widths ...float64) {
	for i, h := range headers {
		w.set(sheet, i+1, 1, h)
	}
	if w.err != nil || len(headers) == 0 {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	w.err = w.f.SetCellStyle(sheet, "A1", last, w.header)
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if w.err == nil {
			w.err = w.f.SetColWidth(sheet, col, col, width)
		}
	}
}

func (w *writer) order(mo *entity.ManufacturingOrder, drafts []entity.PurchaseDraft) {
	rows := [][2]interface{}{
		{"MO编号", mo.MOCode},
		{"产品", fmt.Sprintf("%s %s", mo.ProductCode, mo.ProductName)},
		{"数量", mo.Quantity},
		{"生产数量", mo.ManufactureQuantity},
		{"散货成品预留", mo.FGReservedUnits},
		{"容差(%)", mo.TolerancePercentage},
		{"优先级", mo.Priority},
		{"状态", mo.Status},
		{"原料需求(kg)", mo.RMRequiredKg},
		{"已发放原料(kg)", mo.RMReleasedKg},
		{"总进度(%)", mo.OverallProgress},
		{"计划开始", formatTime(mo.PlannedStartDate)},
		{"计划结束", formatTime(mo.PlannedEndDate)},
		{"实际开始", formatTime(mo.ActualStartDate)},
		{"实际结束", formatTime(mo.ActualEndDate)},
		{"创建人", mo.CreatedBy},
		{"创建时间", mo.CreatedAt.Format(timeLayout)},
		{"停产原因", mo.StopReason},
		{"驳回原因", mo.RejectionReason},
		{"备注", mo.Notes},
	}
	for i, r := range rows {
		w.set(SheetOrder, 1, i+1, r[0])
		w.set(SheetOrder, 2, i+1, r[1])
	}
	if w.err == nil {
		last, _ := excelize.CoordinatesToCellName(1, len(rows))
		w.err = w.f.SetCellStyle(SheetOrder, "A1", last, w.header)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetOrder, "A", "A", 16)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetOrder, "B", "B", 36)
	}

	if len(drafts) == 0 {
		return
	}
	row := len(rows) + 2
	w.set(SheetOrder, 1, row, "采购草稿")
	for _, d := range drafts {
		row++
		w.set(SheetOrder, 1, row, d.DraftCode)
		w.set(SheetOrder, 2, row, fmt.Sprintf("%s 缺 %.4f kg", d.MaterialCode, d.ShortageKg))
	}
}

func (w *writer) processes(processes []entity.ProcessExecution) {
	w.headers(SheetProcesses, processHeaders, 6, 16, 14, 12, 10, 10, 14, 20, 20)
	for i, pe := range processes {
		row := i + 2
		supervisor := ""
		if pe.AssignedSupervisor != nil {
			supervisor = *pe.AssignedSupervisor
		}
		w.set(SheetProcesses, 1, row, pe.SequenceOrder)
		w.set(SheetProcesses, 2, row, pe.ProcessName)
		w.set(SheetProcesses, 3, row, pe.WorkCenter)
		w.set(SheetProcesses, 4, row, pe.Status)
		w.set(SheetProcesses, 5, row, pe.ProgressPercentage)
		w.set(SheetProcesses, 6, row, yesNo(pe.AutoCompleted))
		w.set(SheetProcesses, 7, row, supervisor)
		w.set(SheetProcesses, 8, row, formatTime(pe.ActualStartTime))
		w.set(SheetProcesses, 9, row, formatTime(pe.ActualEndTime))
	}
}

// batches 每个批次一行，工序台账状态按工序顺序展开为列
func (w *writer) batches(batches []entity.Batch, processes []entity.ProcessExecution) {
	headers := append([]string{}, batchHeaders...)
	for _, pe := range processes {
		headers = append(headers, pe.ProcessName)
	}
	w.headers(SheetBatches, headers, 22, 14, 14, 8)
	for i := range batches {
		b := &batches[i]
		row := i + 2
		w.set(SheetBatches, 1, row, b.BatchCode)
		w.set(SheetBatches, 2, row, b.PlannedQuantityKg)
		w.set(SheetBatches, 3, row, b.ActualQuantityCompleted)
		w.set(SheetBatches, 4, row, yesNo(b.Blocked))
		for j, pe := range processes {
			status := ""
			if e := b.EntryFor(pe.ID); e != nil {
				status = e.Status
			}
			w.set(SheetBatches, len(batchHeaders)+j+1, row, status)
		}
	}
}

func (w *writer) ledger(entries []entity.ResourceEntry) {
	w.headers(SheetLedger, ledgerHeaders, 12, 16, 12, 8, 10, 14, 20, 14, 20)
	for i, e := range entries {
		row := i + 2
		w.set(SheetLedger, 1, row, e.Kind)
		w.set(SheetLedger, 2, row, e.Reference)
		w.set(SheetLedger, 3, row, e.Quantity)
		w.set(SheetLedger, 4, row, e.Unit)
		w.set(SheetLedger, 5, row, e.Status)
		w.set(SheetLedger, 6, row, e.CreatedBy)
		w.set(SheetLedger, 7, row, formatTime(e.LockedAt))
		w.set(SheetLedger, 8, row, e.ReleasedBy)
		w.set(SheetLedger, 9, row, formatTime(e.ReleasedAt))
	}
}

func (w *writer) events(events []entity.MOEvent) {
	w.headers(SheetEvents, eventHeaders, 20, 10, 38, 20, 14, 14, 14, 30)
	for i, ev := range events {
		row := i + 2
		w.set(SheetEvents, 1, row, ev.CreatedAt.Format(timeLayout))
		w.set(SheetEvents, 2, row, ev.EntityType)
		w.set(SheetEvents, 3, row, ev.EntityID)
		w.set(SheetEvents, 4, row, ev.Action)
		w.set(SheetEvents, 5, row, ev.FromStatus)
		w.set(SheetEvents, 6, row, ev.ToStatus)
		w.set(SheetEvents, 7, row, ev.OperatorID)
		w.set(SheetEvents, 8, row, ev.Comment)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
