package payment

import "github.com/gin-gonic/gin"

// RegisterProtectedRoutes mounts routes that need an authenticated caller.
// adminOnly guards refunds.
func (h *Handler) RegisterProtectedRoutes(bookings *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	bookings.GET("/payments/:id/status", h.GetStatus)
	bookings.POST("/admin/refunds", adminOnly, h.CreateRefund)
}

// RegisterWebhookRoutes mounts the public, signature-verified callback.
func (h *Handler) RegisterWebhookRoutes(bookings *gin.RouterGroup, limiter gin.HandlerFunc) {
	bookings.POST("/webhooks/stripe", limiter, h.StripeWebhook)
}
