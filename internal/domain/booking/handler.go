package booking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coachbook/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid id")
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return false
	}
	return true
}

func listQuery(c *gin.Context) ListQuery {
	var q ListQuery
	_ = c.ShouldBindQuery(&q)
	return q
}

// CreateRequest godoc
// @Summary      Request a coaching session
// @Tags         Bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body CreateRequestInput true "Booking request"
// @Success      201 {object} createdResponse
// @Router       /bookings/request [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	var in CreateRequestInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.service.CreateRequest(c.Request.Context(), c.GetInt64("user_id"), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, createdResponse{
		ID:        req.ID,
		Status:    req.Status,
		ExpiresAt: req.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ListClientRequests godoc
// @Summary      My booking requests
// @Tags         Bookings
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "Filter by status"
// @Router       /bookings/client/requests [get]
func (h *Handler) ListClientRequests(c *gin.Context) {
	items, total, err := h.service.ListClientRequests(c.Request.Context(), c.GetInt64("user_id"), listQuery(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, listResponse[Request]{Items: items, Total: total})
}

func (h *Handler) GetClientRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.service.GetClientRequest(c.Request.Context(), c.GetInt64("user_id"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// Pay godoc
// @Summary      Pay for an accepted request
// @Description  Charges the client and confirms the session. Fails with 410 once the payment deadline has passed.
// @Tags         Bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int true "Booking request ID"
// @Param        body body PayInput true "Payment source"
// @Success      200 {object} PayResult
// @Router       /bookings/client/requests/{id}/pay [post]
func (h *Handler) Pay(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in PayInput
	if !bindJSON(c, &in) {
		return
	}

	res, err := h.service.Pay(c.Request.Context(), c.GetInt64("user_id"), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *Handler) ListCoachPending(c *gin.Context) {
	items, total, err := h.service.ListCoachPending(c.Request.Context(), c.GetInt64("user_id"), listQuery(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, listResponse[Request]{Items: items, Total: total})
}

func (h *Handler) GetCoachRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.service.GetCoachRequest(c.Request.Context(), c.GetInt64("user_id"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// Accept godoc
// @Summary      Accept a booking request
// @Tags         Bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int true "Booking request ID"
// @Param        body body AcceptInput true "Final price"
// @Success      200 {object} Request
// @Router       /bookings/coach/requests/{id}/accept [post]
func (h *Handler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in AcceptInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.service.Accept(c.Request.Context(), c.GetInt64("user_id"), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, req)
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in RejectInput
	// the body is optional
	if c.Request.ContentLength > 0 && !bindJSON(c, &in) {
		return
	}

	req, err := h.service.Reject(c.Request.Context(), c.GetInt64("user_id"), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, req)
}

func (h *Handler) CompleteSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in CompleteInput
	if c.Request.ContentLength > 0 && !bindJSON(c, &in) {
		return
	}

	sess, err := h.service.CompleteSession(c.Request.Context(), c.GetInt64("user_id"), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

func (h *Handler) ListSessions(c *gin.Context) {
	items, total, err := h.service.ListSessions(c.Request.Context(), c.GetInt64("user_id"), listQuery(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, listResponse[Session]{Items: items, Total: total})
}
