package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Product 产品主数据（BOM提供方）
type Product struct {
	Code         string         `json:"code" gorm:"primaryKey;size:64"`
	Name         string         `json:"name" gorm:"size:128;not null"`
	GramsPerUnit float64        `json:"grams_per_unit" gorm:"type:decimal(12,4);not null"`
	Attributes   datatypes.JSON `json:"attributes,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Processes []ProductProcess  `json:"processes,omitempty" gorm:"foreignKey:ProductCode;references:Code"`
	Materials []ProductMaterial `json:"materials,omitempty" gorm:"foreignKey:ProductCode;references:Code"`
}

func (Product) TableName() string {
	return "mes_products"
}

// ProductProcess 产品工序模板
type ProductProcess struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	ProductCode string    `json:"product_code" gorm:"size:64;not null;index"`
	Name        string    `json:"name" gorm:"size:100;not null"`
	Sequence    int       `json:"sequence" gorm:"not null"`
	WorkCenter  string    `json:"work_center" gorm:"size:64"`
	Weight      float64   `json:"weight" gorm:"type:decimal(10,4);default:1"`
	CreatedAt   time.Time `json:"created_at"`

	Steps []ProductProcessStep `json:"steps,omitempty" gorm:"foreignKey:ProductProcessID"`
}

func (ProductProcess) TableName() string {
	return "mes_product_processes"
}

// ProductProcessStep 工序模板子步骤
type ProductProcessStep struct {
	ID               string `json:"id" gorm:"primaryKey;size:36"`
	ProductProcessID string `json:"product_process_id" gorm:"size:36;not null;index"`
	Name             string `json:"name" gorm:"size:100;not null"`
	Sequence         int    `json:"sequence" gorm:"not null"`
}

func (ProductProcessStep) TableName() string {
	return "mes_product_process_steps"
}

// ProductMaterial 产品原料消耗（每单位克数）
type ProductMaterial struct {
	ID           string  `json:"id" gorm:"primaryKey;size:36"`
	ProductCode  string  `json:"product_code" gorm:"size:64;not null;index"`
	MaterialCode string  `json:"material_code" gorm:"size:64;not null"`
	GramsPerUnit float64 `json:"grams_per_unit" gorm:"type:decimal(12,4);not null"`
}

func (ProductMaterial) TableName() string {
	return "mes_product_materials"
}

// RawMaterial 原料库存
type RawMaterial struct {
	Code      string    `json:"code" gorm:"primaryKey;size:64"`
	Name      string    `json:"name" gorm:"size:128"`
	StockKg   float64   `json:"stock_kg" gorm:"type:decimal(14,4);default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RawMaterial) TableName() string {
	return "mes_raw_materials"
}

// FGStock 成品散货库存
type FGStock struct {
	ProductCode string    `json:"product_code" gorm:"primaryKey;size:64"`
	LooseUnits  int       `json:"loose_units" gorm:"default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (FGStock) TableName() string {
	return "mes_fg_stock"
}
