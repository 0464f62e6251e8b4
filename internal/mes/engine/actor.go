package engine

// 角色
const (
	RoleManager        = "manager"
	RoleProductionHead = "production_head"
	RoleGM             = "gm"
	RoleStoreManager   = "store_manager"
	RoleSupervisor     = "supervisor"
	RolePlanner        = "planner"
)

// Actor 操作人，所有变更操作都显式传入
type Actor struct {
	UserID string
	Roles  []string
}

// SystemActor 系统自动操作（如阈值自动完工）
var SystemActor = Actor{UserID: "system"}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if a.HasRole(role) {
			return true
		}
	}
	return false
}

// Require 检查操作人至少拥有其中一个角色；经理可执行所有操作
func (a Actor) Require(action string, roles ...string) error {
	if a.UserID == "" || !(a.HasRole(RoleManager) || a.HasAnyRole(roles...)) {
		return &UnauthorizedError{UserID: a.UserID, Action: action, Need: roles}
	}
	return nil
}

// 各操作所需角色
var (
	RolesCreateOrder  = []string{RolePlanner, RoleManager, RoleProductionHead}
	RolesGMApprove    = []string{RoleGM, RoleManager}
	RolesAllocateRM   = []string{RoleStoreManager, RoleProductionHead}
	RolesApprove      = []string{RoleManager, RoleProductionHead}
	RolesShopFloor    = []string{RoleProductionHead, RoleManager}
	RolesPrioritize   = []string{RoleProductionHead, RoleManager}
	RolesBatchOperate = []string{RoleSupervisor, RoleProductionHead, RoleManager}
)

// CanOperateProcess 指定了主管的工序只能由该主管或生产负责人/经理操作；未指定时任意主管可操作
func (a Actor) CanOperateProcess(assignedSupervisor *string) error {
	if a.HasAnyRole(RolesShopFloor...) {
		return nil
	}
	if assignedSupervisor != nil && *assignedSupervisor != "" {
		if a.UserID == *assignedSupervisor {
			return nil
		}
		return &UnauthorizedError{UserID: a.UserID, Action: "operate process", Need: []string{"assigned supervisor " + *assignedSupervisor}}
	}
	return a.Require("operate process", RoleSupervisor)
}
