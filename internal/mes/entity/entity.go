package entity

import "gorm.io/gorm"

// AutoMigrate 自动迁移所有MES表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 主数据
		&Product{},
		&ProductProcess{},
		&ProductProcessStep{},
		&ProductMaterial{},
		&RawMaterial{},
		&FGStock{},
		&RoleGrant{},

		// 生产订单
		&ManufacturingOrder{},
		&ProcessExecution{},
		&ProcessStep{},
		&Batch{},
		&BatchProcessEntry{},

		// 资源台账
		&ResourceEntry{},

		// 采购草稿与日志
		&PurchaseDraft{},
		&MOEvent{},
	)
}
