package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// LedgerService MO资源台账：原料预留、锁定与释放
type LedgerService struct {
	core *core
}

// ReserveRequest 预留请求
type ReserveRequest struct {
	Kind      string  `json:"kind" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Reference string  `json:"material_or_product_reference" binding:"required"`
}

var rolesLockRelease = append(append([]string{}, engine.RolesAllocateRM...), engine.RolesApprove...)

// Reserve 追加一条预留，原料有效占用不得超过 rm_required_kg*(1+容差)
func (s *LedgerService) Reserve(ctx context.Context, actor engine.Actor, moRef string, req ReserveRequest) (*entity.ResourceEntry, error) {
	var out entity.ResourceEntry
	_, err := s.core.withStockOrder(ctx, actor, moRef, "reserve", func(u *unit) error {
		if err := actor.Require("reserve resources", engine.RolesAllocateRM...); err != nil {
			return err
		}
		active, err := u.tx.Resource.FindByMO(u.ctx, u.mo.ID, true)
		if err != nil {
			return fmt.Errorf("查询资源台账失败: %w", err)
		}
		entry, err := u.reserve(active, req.Kind, req.Quantity, req.Reference)
		if err != nil {
			return err
		}
		out = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// inEntry 通过台账定位MO后加锁执行
func (s *LedgerService) inEntry(ctx context.Context, actor engine.Actor, entryID, op string, fn func(u *unit, entry *entity.ResourceEntry) error) error {
	e, err := s.core.repos.Resource.FindByID(ctx, entryID)
	if err != nil {
		err = s.core.notFound("resource entry", entryID, err)
		s.core.fail(op, entryID, err)
		return err
	}
	_, err = s.core.inOrder(ctx, actor, e.MOID, op, func(u *unit) error {
		entry, err := u.tx.Resource.FindByID(u.ctx, entryID)
		if err != nil {
			return notFoundAs(err, "resource entry", entryID)
		}
		return fn(u, entry)
	})
	return err
}

// Lock 预留原料转为锁定（已发放到车间）
func (s *LedgerService) Lock(ctx context.Context, actor engine.Actor, entryID string) (*entity.ResourceEntry, error) {
	var out entity.ResourceEntry
	err := s.inEntry(ctx, actor, entryID, "lock", func(u *unit, entry *entity.ResourceEntry) error {
		if err := actor.Require("lock raw material", rolesLockRelease...); err != nil {
			return err
		}
		if err := u.lockEntry(entry); err != nil {
			return err
		}
		if err := u.saveOrder(); err != nil {
			return err
		}
		out = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Release 释放单条有效台账
func (s *LedgerService) Release(ctx context.Context, actor engine.Actor, entryID, reason string) (*entity.ResourceEntry, error) {
	var out entity.ResourceEntry
	err := s.inEntry(ctx, actor, entryID, "release", func(u *unit, entry *entity.ResourceEntry) error {
		if err := actor.Require("release resources", rolesLockRelease...); err != nil {
			return err
		}
		if err := engine.CheckRelease(entry); err != nil {
			return err
		}
		n, err := u.tx.Resource.ReleaseByIDs(u.ctx, []string{entry.ID}, actor.UserID, u.now)
		if err != nil {
			return fmt.Errorf("释放资源台账失败: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("%w: resource entry %s already released", ErrConcurrentModification, entry.ID)
		}
		entry.Status = entity.ResourceStatusReleased
		entry.ReleasedBy = actor.UserID
		entry.ReleasedAt = &u.now
		u.released(entry.Kind, 1)
		if err := u.record(entity.EventEntityLedger, entry.ID, "release", entity.ResourceStatusActive, entity.ResourceStatusReleased, map[string]interface{}{
			"kind":      entry.Kind,
			"quantity":  entry.Quantity,
			"reference": entry.Reference,
		}, reason); err != nil {
			return err
		}
		out = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseAllFor 在一个事务中释放MO的全部有效台账，返回按类型统计的释放条数
func (s *LedgerService) ReleaseAllFor(ctx context.Context, actor engine.Actor, moRef, reason string) (map[string]int, error) {
	var counts map[string]int
	_, err := s.core.withOrder(ctx, actor, moRef, "release_all", func(u *unit) error {
		if err := actor.Require("release resources", rolesLockRelease...); err != nil {
			return err
		}
		var err error
		counts, err = u.releaseAll(reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// List MO的台账
func (s *LedgerService) List(ctx context.Context, moRef string, activeOnly bool) ([]entity.ResourceEntry, error) {
	id, err := s.core.resolveOrderID(ctx, moRef)
	if err != nil {
		return nil, err
	}
	return s.core.repos.Resource.FindByMO(ctx, id, activeOnly)
}
