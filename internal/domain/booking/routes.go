package booking

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the booking API on the authenticated /bookings group.
// payLimiter throttles payment attempts.
func (h *Handler) RegisterRoutes(bookings *gin.RouterGroup, clientOnly, coachOnly, payLimiter gin.HandlerFunc) {
	bookings.POST("/request", clientOnly, h.CreateRequest)
	bookings.GET("/sessions", h.ListSessions)

	client := bookings.Group("/client", clientOnly)
	{
		client.GET("/requests", h.ListClientRequests)
		client.GET("/requests/:id", h.GetClientRequest)
		client.POST("/requests/:id/pay", payLimiter, h.Pay)
	}

	coach := bookings.Group("/coach", coachOnly)
	{
		coach.GET("/pending", h.ListCoachPending)
		coach.GET("/requests/:id", h.GetCoachRequest)
		coach.POST("/requests/:id/accept", h.Accept)
		coach.POST("/requests/:id/reject", h.Reject)
		coach.POST("/sessions/:id/complete", h.CompleteSession)
	}
}
