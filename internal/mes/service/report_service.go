package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-mes/internal/mes/report"
	"github.com/bitfantasy/nimo-mes/internal/shared/storage"
)

// ErrArchiveDisabled 未配置对象存储
var ErrArchiveDisabled = errors.New("report archive is not configured")

// ReportService MO导出与归档
type ReportService struct {
	core     *core
	archiver storage.Archiver
}

// ExportOrder 生成MO工作簿，返回文件内容与文件名
func (s *ReportService) ExportOrder(ctx context.Context, moRef string) ([]byte, string, error) {
	mo, err := s.core.repos.Order.FindDetail(ctx, moRef)
	if err != nil {
		return nil, "", s.core.notFound("manufacturing order", moRef, err)
	}
	resources, err := s.core.repos.Resource.FindByMO(ctx, mo.ID, false)
	if err != nil {
		return nil, "", fmt.Errorf("查询资源台账失败: %w", err)
	}
	events, err := s.core.repos.Event.FindByMO(ctx, mo.ID)
	if err != nil {
		return nil, "", fmt.Errorf("查询操作日志失败: %w", err)
	}
	drafts, err := s.core.repos.Purchase.FindAll(ctx, mo.ID)
	if err != nil {
		return nil, "", fmt.Errorf("查询采购草稿失败: %w", err)
	}

	f, err := report.OrderWorkbook(report.OrderData{Order: mo, Resources: resources, Events: events, Drafts: drafts})
	if err != nil {
		return nil, "", fmt.Errorf("生成工作簿失败: %w", err)
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("写入工作簿失败: %w", err)
	}
	return buf.Bytes(), report.Filename(mo), nil
}

// ArchiveOrder 导出并上传到对象存储，返回对象路径
func (s *ReportService) ArchiveOrder(ctx context.Context, moRef string) (string, error) {
	if s.archiver == nil {
		return "", ErrArchiveDisabled
	}
	data, filename, err := s.ExportOrder(ctx, moRef)
	if err != nil {
		return "", err
	}
	path, err := s.archiver.Archive(ctx, storage.ObjectName("mo-reports", filename, time.Now()), report.ContentType, data)
	if err != nil {
		s.core.logger.Error("archive report failed", zap.String("mo", moRef), zap.Error(err))
		return "", err
	}
	s.core.logger.Info("report archived", zap.String("mo", moRef), zap.String("path", path))
	return path, nil
}
