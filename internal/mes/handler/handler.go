package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
	"github.com/bitfantasy/nimo-mes/internal/shared/realtime"
)

// Handlers MES处理器集合
type Handlers struct {
	Order     *OrderHandler
	Execution *ExecutionHandler
	Ledger    *LedgerHandler
	Stock     *StockHandler
	Realtime  *RealtimeHandler
}

// NewHandlers 创建MES处理器集合，hub 为空时不注册实时推送端点
func NewHandlers(svc *service.Services, hub *realtime.Hub, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := &base{svc: svc, logger: logger.Named("handler")}
	h := &Handlers{
		Order:     &OrderHandler{base},
		Execution: &ExecutionHandler{base},
		Ledger:    &LedgerHandler{base},
		Stock:     &StockHandler{base},
	}
	if hub != nil {
		h.Realtime = &RealtimeHandler{hub: hub}
	}
	return h
}

// base 各处理器共用的服务与身份解析
type base struct {
	svc    *service.Services
	logger *zap.Logger
}

// actor 由令牌身份与授权表合并出操作人；失败时已写入响应
func (b *base) actor(c *gin.Context) (engine.Actor, bool) {
	actor, err := b.svc.Actor(c.Request.Context(), GetUserID(c), GetRoles(c))
	if err != nil {
		b.logger.Error("resolve actor failed", zap.String("user_id", GetUserID(c)), zap.Error(err))
		InternalError(c, "获取用户角色失败")
		return actor, false
	}
	return actor, true
}

// fail 按业务错误类型映射响应码
func (b *base) fail(c *gin.Context, err error) {
	code, data := errorCode(err)
	if code >= 50000 && code != 50300 {
		b.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
	}
	ErrorWithData(c, code, err.Error(), data)
}

func errorCode(err error) (int, interface{}) {
	var stock *engine.InsufficientStockError
	var batches *engine.BatchesIncompleteError
	switch {
	case errors.As(err, &stock):
		return 42202, gin.H{
			"reference":    stock.Reference,
			"required_kg":  stock.RequiredKg,
			"available_kg": stock.AvailableKg,
			"shortage_kg":  stock.ShortageKg,
		}
	case errors.As(err, &batches):
		return 42200, gin.H{"process_execution_id": batches.ProcessExecutionID, "batch_ids": batches.BatchIDs}
	case errors.Is(err, engine.ErrStepsIncomplete):
		return 42201, nil
	case errors.Is(err, engine.ErrInvalidProductSpec):
		return 40001, nil
	case errors.Is(err, engine.ErrInvalidInput):
		return 40000, nil
	case errors.Is(err, engine.ErrUnauthorized):
		return 40300, nil
	case errors.Is(err, engine.ErrNotFound):
		return 40400, nil
	case errors.Is(err, engine.ErrInvalidStateTransition):
		return 40900, nil
	case errors.Is(err, service.ErrConcurrentModification):
		return 40901, nil
	case errors.Is(err, lock.ErrLockTimeout):
		return 40902, nil
	case errors.Is(err, service.ErrArchiveDisabled):
		return 50300, nil
	}
	return 50000, nil
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 错误响应附带明细（缺料量、未完成批次等）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetRoles 令牌中声明的角色
func GetRoles(c *gin.Context) []string {
	roles, _ := c.Get("roles")
	if r, ok := roles.([]string); ok {
		return r
	}
	return nil
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// bindOptional 请求体可以为空
func bindOptional(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

type reasonRequest struct {
	Reason string `json:"reason"`
}
