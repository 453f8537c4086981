package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/invoice"
	"coachbook/internal/domain/notification"
	"coachbook/internal/domain/payment"
	"coachbook/internal/domain/profile"
	"coachbook/internal/domain/realtime"
	"coachbook/internal/domain/wallet"
	"coachbook/internal/middleware"
	jwtsvc "coachbook/internal/pkg/jwt"
)

// Router builds the HTTP API. Webhooks, rate cards and the websocket are
// public; everything else requires a bearer token.
func (c *Container) Router(hub *realtime.Hub, j *jwtsvc.Service) *gin.Engine {
	cfg, log := c.Config, c.Log

	r := gin.New()
	r.Use(middleware.ErrorLogger(log))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	bookingHandler := booking.NewHandler(c.Bookings)
	paymentHandler := payment.NewHandler(c.Payments, log)
	invoiceHandler := invoice.NewHandler(c.Invoices)
	notificationHandler := notification.NewHandler(c.Notifications)
	walletHandler := wallet.NewHandler(c.Wallets)
	profileHandler := profile.NewHandler(c.Profiles)
	realtimeHandler := realtime.NewHandler(hub, j, log)

	v1 := r.Group("/api/v1")
	{
		// public
		profileHandler.RegisterRoutes(v1)
		realtimeHandler.RegisterRoutes(v1)
		paymentHandler.RegisterWebhookRoutes(v1.Group("/bookings"), middleware.RateLimit(cfg.WebhookRateLimitPerMin, log))

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(j))
		{
			bookings := protected.Group("/bookings")
			bookingHandler.RegisterRoutes(bookings, middleware.ClientOnly(), middleware.CoachOnly(), middleware.RateLimit(cfg.PayRateLimitPerMin, log))
			paymentHandler.RegisterProtectedRoutes(bookings, middleware.AdminOnly())

			invoiceHandler.RegisterRoutes(protected, middleware.CoachOnly())
			notification.RegisterRoutes(protected, notificationHandler)
			walletHandler.RegisterRoutes(protected, middleware.CoachOnly())
		}
	}
	return r
}
