package profile

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/coaches/:id/rates", h.ListCoachRates)
}
