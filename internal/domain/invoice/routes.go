package invoice

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the invoice API on an authenticated group.
func (h *Handler) RegisterRoutes(protected *gin.RouterGroup, coachOnly gin.HandlerFunc) {
	invoices := protected.Group("/invoices")
	{
		invoices.POST("", coachOnly, h.Create)
		invoices.POST("/recurring", coachOnly, h.CreateRecurring)
		invoices.GET("/metrics", h.Metrics)
		invoices.GET("/coach/:id", h.ListByCoach)
		invoices.GET("/client/:id", h.ListByClient)
		invoices.GET("/:id", h.Get)
		invoices.GET("/:id/pdf", h.Document)
		invoices.POST("/:id/send", h.Send)
		invoices.POST("/:id/payments", h.RecordPayment)
		invoices.POST("/:id/cancel", h.Cancel)
	}
}
