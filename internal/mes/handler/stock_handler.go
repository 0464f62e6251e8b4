package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// StockHandler 产品主数据、原料试算与采购草稿
type StockHandler struct {
	*base
}

// ListProducts GET /products
func (h *StockHandler) ListProducts(c *gin.Context) {
	products, err := h.svc.Stock.ListProducts(c.Request.Context())
	if err != nil {
		InternalError(c, "获取产品列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: products})
}

// GetProduct GET /products/:code
func (h *StockHandler) GetProduct(c *gin.Context) {
	p, err := h.svc.Stock.GetProduct(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, p)
}

// CheckRequirement 原料需求试算
// GET /products/:code/requirement?quantity=1000&tolerance=5
func (h *StockHandler) CheckRequirement(c *gin.Context) {
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		BadRequest(c, "quantity 必须为整数")
		return
	}
	tolerance := 0.0
	if raw := c.Query("tolerance"); raw != "" {
		if tolerance, err = strconv.ParseFloat(raw, 64); err != nil {
			BadRequest(c, "tolerance 必须为数字")
			return
		}
	}
	rep, err := h.svc.Stock.CheckRequirement(c.Request.Context(), c.Param("code"), quantity, tolerance)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, rep)
}

// ListPurchaseDrafts GET /purchase-drafts?mo_id=xxx
func (h *StockHandler) ListPurchaseDrafts(c *gin.Context) {
	drafts, err := h.svc.Stock.ListPurchaseDrafts(c.Request.Context(), c.Query("mo_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, ListResponse{Items: drafts})
}
