package wallet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type payoutRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required,gt=0"`
}

func (h *Handler) GetMyWallet(c *gin.Context) {
	coachID := c.GetInt64("user_id")
	if coachID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	wallet, err := h.service.GetOrCreateWallet(c.Request.Context(), coachID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, wallet)
}

func (h *Handler) RequestPayout(c *gin.Context) {
	coachID := c.GetInt64("user_id")
	if coachID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	wallet, entry, err := h.service.Payout(c.Request.Context(), coachID, req.AmountCents)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"wallet": wallet, "transaction": entry})
}

func (h *Handler) ListMyTransactions(c *gin.Context) {
	coachID := c.GetInt64("user_id")
	if coachID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.service.ListTransactions(c.Request.Context(), coachID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transactions": entries})
}
