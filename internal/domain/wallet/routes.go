package wallet

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the coach earnings wallet.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, coachOnly ...gin.HandlerFunc) {
	wallets := v1.Group("/wallets/me", coachOnly...)
	{
		wallets.GET("", h.GetMyWallet)
		wallets.GET("/transactions", h.ListMyTransactions)
		wallets.POST("/payouts", h.RequestPayout)
	}
}
