package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// PurchaseRepository 缺料采购草稿仓库
type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// DraftPurchase 为缺料生成采购需求草稿
func (r *PurchaseRepository) DraftPurchase(ctx context.Context, mo *entity.ManufacturingOrder, materialCode string, shortageKg float64, createdBy string) (*entity.PurchaseDraft, error) {
	code, err := r.GenerateCode(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	draft := &entity.PurchaseDraft{
		ID:           uuid.New().String(),
		DraftCode:    code,
		MOID:         mo.ID,
		MOCode:       mo.MOCode,
		MaterialCode: materialCode,
		ShortageKg:   shortageKg,
		Status:       entity.PurchaseDraftStatusDraft,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(draft).Error; err != nil {
		return nil, err
	}
	return draft, nil
}

// FindAll 采购草稿列表，moID 为空时返回全部
func (r *PurchaseRepository) FindAll(ctx context.Context, moID string) ([]entity.PurchaseDraft, error) {
	var items []entity.PurchaseDraft
	query := r.db.WithContext(ctx)
	if moID != "" {
		query = query.Where("mo_id = ?", moID)
	}
	err := query.Order("created_at DESC").Find(&items).Error
	return items, err
}

// GenerateCode 生成草稿编码 PRD-{year}-{4位}
func (r *PurchaseRepository) GenerateCode(ctx context.Context, now time.Time) (string, error) {
	year := now.Format("2006")
	prefix := fmt.Sprintf("PRD-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.PurchaseDraft{}).
		Select("COALESCE(MAX(draft_code), '')").
		Where("draft_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "PRD-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("PRD-%s-%04d", year, seq), nil
}
