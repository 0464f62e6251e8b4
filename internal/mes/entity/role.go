package entity

import "time"

// RoleGrant 用户角色授权，WorkCenter为空表示全部工作中心
type RoleGrant struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     string    `json:"user_id" gorm:"size:64;not null;index"`
	Role       string    `json:"role" gorm:"size:32;not null"`
	WorkCenter string    `json:"work_center" gorm:"size:64"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RoleGrant) TableName() string {
	return "mes_role_grants"
}
