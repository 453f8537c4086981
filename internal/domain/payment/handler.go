package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coachbook/internal/pkg/response"
)

const maxWebhookBody = 64 * 1024

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

// GetStatus godoc
// @Summary      Payment status
// @Description  Returns a payment to its payer, its coach or an admin. Processing payments are refreshed from the gateway.
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Payment ID"
// @Success      200 {object} Payment
// @Router       /bookings/payments/{id}/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID")
		return
	}

	p, err := h.service.GetStatus(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// CreateRefund godoc
// @Summary      Refund a payment
// @Tags         Payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body RefundInput true "Refund payload"
// @Success      201 {object} Refund
// @Router       /bookings/admin/refunds [post]
func (h *Handler) CreateRefund(c *gin.Context) {
	var in RefundInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	refund, err := h.service.Refund(c.Request.Context(), c.GetInt64("user_id"), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, refund)
}

// StripeWebhook godoc
// @Summary      Stripe webhook
// @Description  Verifies the Stripe-Signature header, then applies payment_intent events.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Router       /bookings/webhooks/stripe [post]
func (h *Handler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_BODY", "Failed to read body")
		return
	}

	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader("Stripe-Signature")); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			response.Error(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed")
			return
		}
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"received": true})
}
