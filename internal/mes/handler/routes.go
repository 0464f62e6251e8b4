package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/engine"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
)

// RegisterRoutes 注册MES路由，api 需已挂载 JWT 认证
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	orders := api.Group("/orders")
	{
		orders.POST("", h.Order.CreateOrder)
		orders.GET("", h.Order.ListOrders)
		orders.GET("/:id", h.Order.GetOrder)
		orders.GET("/:id/events", h.Order.ListEvents)

		orders.POST("/:id/submit", h.Order.Submit)
		orders.POST("/:id/gm-approve", h.Order.GMApprove)
		orders.POST("/:id/allocate-rm", h.Order.AllocateRM)
		orders.POST("/:id/approve", h.Order.Approve)
		orders.POST("/:id/start", h.Order.StartProduction)
		orders.POST("/:id/reject", h.Order.Reject)
		orders.POST("/:id/hold", h.Order.Hold)
		orders.POST("/:id/resume", h.Order.Resume)
		orders.POST("/:id/cancel", h.Order.Cancel)
		orders.POST("/:id/complete", h.Order.Complete)

		orders.GET("/:id/processes", h.Order.ListProcesses)
		orders.POST("/:id/processes", h.Order.InitializeProcesses)
		orders.GET("/:id/batches", h.Execution.ListBatches)
		orders.POST("/:id/batches", h.Execution.CreateBatches)

		orders.GET("/:id/resources", h.Ledger.ListResources)
		orders.POST("/:id/resources", h.Ledger.Reserve)
		orders.POST("/:id/resources/release-all", h.Ledger.ReleaseAll)

		orders.GET("/:id/stop-impact", h.Ledger.PreviewStop)
		orders.POST("/:id/stop", h.Ledger.Stop)
		orders.PUT("/:id/priority", h.Ledger.SetPriority)

		orders.GET("/:id/export", h.Order.ExportOrder)
		orders.POST("/:id/archive",
			middleware.RequireAnyRole(engine.RoleProductionHead, engine.RoleStoreManager),
			h.Order.ArchiveOrder)
	}

	api.GET("/queue", h.Ledger.ListQueue)

	processes := api.Group("/processes")
	{
		processes.GET("/:id", h.Execution.GetProcess)
		processes.POST("/:id/start", h.Execution.StartProcess)
		processes.POST("/:id/complete", h.Execution.CompleteProcess)
		processes.POST("/:id/hold", h.Execution.HoldProcess)
		processes.POST("/:id/resume", h.Execution.ResumeProcess)
		processes.POST("/:id/steps/:stepId/complete", h.Execution.CompleteStep)
		processes.PUT("/:id/supervisor", h.Execution.AssignSupervisor)
	}

	batches := api.Group("/batches")
	{
		batches.GET("/:id", h.Execution.GetBatch)
		batches.POST("/:id/processes/:peId/start", h.Execution.StartBatchProcess)
		batches.POST("/:id/processes/:peId/complete", h.Execution.CompleteBatchProcess)
	}

	resources := api.Group("/resources")
	{
		resources.POST("/:id/lock", h.Ledger.Lock)
		resources.POST("/:id/release", h.Ledger.Release)
	}

	products := api.Group("/products")
	{
		products.GET("", h.Stock.ListProducts)
		products.GET("/:code", h.Stock.GetProduct)
		products.GET("/:code/requirement", h.Stock.CheckRequirement)
	}
	api.GET("/purchase-drafts", h.Stock.ListPurchaseDrafts)

	if h.Realtime != nil {
		api.GET("/events", h.Realtime.Stream)
		api.GET("/ws", h.Realtime.WebSocket)
	}
}
