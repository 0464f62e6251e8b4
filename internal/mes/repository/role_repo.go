package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// RoleRepository 用户角色授权仓库
type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Grant 新增授权，同一用户、角色、工作中心只保留一条
func (r *RoleRepository) Grant(ctx context.Context, g *entity.RoleGrant) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND role = ? AND work_center = ?", g.UserID, g.Role, g.WorkCenter).
		FirstOrCreate(g).Error
}

// RolesOf 用户被授予的角色（去重）
func (r *RoleRepository) RolesOf(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	err := r.db.WithContext(ctx).
		Model(&entity.RoleGrant{}).
		Distinct("role").
		Where("user_id = ?", userID).
		Pluck("role", &roles).Error
	return roles, err
}

// IsSupervisorAt 用户是否为该工作中心（或全部工作中心）的主管
func (r *RoleRepository) IsSupervisorAt(ctx context.Context, userID, workCenter string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&entity.RoleGrant{}).
		Where("user_id = ? AND role = ?", userID, engine.RoleSupervisor).
		Where("work_center = ? OR work_center = ''", workCenter).
		Count(&n).Error
	return n > 0, err
}
