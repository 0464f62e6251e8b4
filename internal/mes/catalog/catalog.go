// Package catalog 从 YAML 文件导入产品BOM、原料库存、散货成品与角色授权
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// Catalog 目录文件结构
type Catalog struct {
	Products     []Product     `yaml:"products"`
	RawMaterials []RawMaterial `yaml:"raw_materials"`
	FGStock      []FGStock     `yaml:"fg_stock"`
	RoleGrants   []RoleGrant   `yaml:"role_grants"`
}

type Product struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// GramsPerUnit 为空时取各原料之和
	GramsPerUnit float64                `yaml:"grams_per_unit"`
	Attributes   map[string]interface{} `yaml:"attributes"`
	Processes    []Process              `yaml:"processes"`
	Materials    []Material             `yaml:"materials"`
}

type Process struct {
	Name       string   `yaml:"name"`
	WorkCenter string   `yaml:"work_center"`
	Weight     float64  `yaml:"weight"`
	Steps      []string `yaml:"steps"`
}

type Material struct {
	Code         string  `yaml:"code"`
	GramsPerUnit float64 `yaml:"grams_per_unit"`
}

type RawMaterial struct {
	Code    string  `yaml:"code"`
	Name    string  `yaml:"name"`
	StockKg float64 `yaml:"stock_kg"`
}

type FGStock struct {
	ProductCode string `yaml:"product_code"`
	LooseUnits  int    `yaml:"loose_units"`
}

type RoleGrant struct {
	UserID     string `yaml:"user_id"`
	Role       string `yaml:"role"`
	WorkCenter string `yaml:"work_center"`
}

var knownRoles = map[string]bool{
	engine.RoleManager:        true,
	engine.RoleProductionHead: true,
	engine.RoleGM:             true,
	engine.RoleStoreManager:   true,
	engine.RoleSupervisor:     true,
	engine.RolePlanner:        true,
}

// Load 读取并校验目录文件
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 目录
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 产品至少一道工序和一种原料，克重为正，库存非负
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if strings.TrimSpace(p.Code) == "" {
			return &engine.InvalidProductSpecError{Reason: "product code is required"}
		}
		if seen[p.Code] {
			return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: "duplicate product"}
		}
		seen[p.Code] = true
		if len(p.Processes) == 0 {
			return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: "no processes defined"}
		}
		for _, pr := range p.Processes {
			if strings.TrimSpace(pr.Name) == "" {
				return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: "process name is required"}
			}
			if pr.Weight < 0 {
				return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: fmt.Sprintf("process %s has negative weight", pr.Name)}
			}
		}
		if len(p.Materials) == 0 {
			return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: "no materials defined"}
		}
		for _, m := range p.Materials {
			if m.Code == "" || m.GramsPerUnit <= 0 {
				return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: fmt.Sprintf("material %q needs a positive grams_per_unit", m.Code)}
			}
		}
		if p.GramsPerUnit < 0 {
			return &engine.InvalidProductSpecError{ProductCode: p.Code, Reason: "grams_per_unit must be positive"}
		}
	}
	for _, m := range c.RawMaterials {
		if m.Code == "" || m.StockKg < 0 {
			return &engine.ValidationError{Field: "raw_materials", Message: fmt.Sprintf("invalid stock for %q", m.Code)}
		}
	}
	for _, s := range c.FGStock {
		if s.ProductCode == "" || s.LooseUnits < 0 {
			return &engine.ValidationError{Field: "fg_stock", Message: fmt.Sprintf("invalid loose units for %q", s.ProductCode)}
		}
	}
	for _, g := range c.RoleGrants {
		if g.UserID == "" || !knownRoles[g.Role] {
			return &engine.ValidationError{Field: "role_grants", Message: fmt.Sprintf("invalid grant %s/%s", g.UserID, g.Role)}
		}
	}
	return nil
}

// Summary 导入统计
type Summary struct {
	Products     int
	RawMaterials int
	FGStock      int
	RoleGrants   int
}

// Seed 在一个事务中写入目录，产品工序与原料整体替换，重复导入结果不变
func Seed(ctx context.Context, repos *repository.Repositories, c *Catalog, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sum Summary
	now := time.Now()
	err := repos.Transaction(ctx, func(tx *repository.Repositories) error {
		for _, p := range c.Products {
			product, err := toEntity(p, now)
			if err != nil {
				return err
			}
			if err := tx.Product.Replace(ctx, product); err != nil {
				return fmt.Errorf("导入产品 %s 失败: %w", p.Code, err)
			}
			sum.Products++
		}
		for _, m := range c.RawMaterials {
			name := m.Name
			if name == "" {
				name = m.Code
			}
			if err := tx.Product.UpsertRawMaterial(ctx, &entity.RawMaterial{Code: m.Code, Name: name, StockKg: m.StockKg, UpdatedAt: now}); err != nil {
				return fmt.Errorf("导入原料 %s 失败: %w", m.Code, err)
			}
			sum.RawMaterials++
		}
		for _, s := range c.FGStock {
			if err := tx.Product.UpsertFGStock(ctx, &entity.FGStock{ProductCode: s.ProductCode, LooseUnits: s.LooseUnits, UpdatedAt: now}); err != nil {
				return fmt.Errorf("导入成品库存 %s 失败: %w", s.ProductCode, err)
			}
			sum.FGStock++
		}
		for _, g := range c.RoleGrants {
			grant := &entity.RoleGrant{ID: uuid.New().String(), UserID: g.UserID, Role: g.Role, WorkCenter: g.WorkCenter, CreatedAt: now}
			if err := tx.Role.Grant(ctx, grant); err != nil {
				return fmt.Errorf("导入角色授权 %s 失败: %w", g.UserID, err)
			}
			sum.RoleGrants++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	logger.Info("catalog seeded",
		zap.Int("products", sum.Products),
		zap.Int("raw_materials", sum.RawMaterials),
		zap.Int("fg_stock", sum.FGStock),
		zap.Int("role_grants", sum.RoleGrants),
	)
	return sum, nil
}

func toEntity(p Product, now time.Time) (*entity.Product, error) {
	out := &entity.Product{
		Code:         p.Code,
		Name:         p.Name,
		GramsPerUnit: p.GramsPerUnit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if out.Name == "" {
		out.Name = p.Code
	}
	if len(p.Attributes) > 0 {
		raw, err := json.Marshal(p.Attributes)
		if err != nil {
			return nil, fmt.Errorf("产品 %s 属性无法序列化: %w", p.Code, err)
		}
		out.Attributes = datatypes.JSON(raw)
	}
	sum := 0.0
	for _, m := range p.Materials {
		out.Materials = append(out.Materials, entity.ProductMaterial{MaterialCode: m.Code, GramsPerUnit: m.GramsPerUnit})
		sum += m.GramsPerUnit
	}
	if out.GramsPerUnit == 0 {
		out.GramsPerUnit = sum
	}
	for i, pr := range p.Processes {
		weight := pr.Weight
		if weight == 0 {
			weight = 1
		}
		pp := entity.ProductProcess{
			Name:       pr.Name,
			Sequence:   i + 1,
			WorkCenter: pr.WorkCenter,
			Weight:     weight,
			CreatedAt:  now,
		}
		for j, step := range pr.Steps {
			pp.Steps = append(pp.Steps, entity.ProductProcessStep{Name: step, Sequence: j + 1})
		}
		out.Processes = append(out.Processes, pp)
	}
	return out, nil
}
