package invoice

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

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name)
		return 0, false
	}
	return id, true
}

func listFilter(c *gin.Context) ListFilter {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return ListFilter{Status: Status(c.Query("status")), Limit: limit, Offset: offset}
}

// Create godoc
// @Summary      Create an invoice
// @Tags         Invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body CreateInput true "Invoice"
// @Success      201 {object} Invoice
// @Router       /invoices [post]
func (h *Handler) Create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	in.CoachID = c.GetInt64("user_id")
	in.SessionID = nil
	in.RecurringInvoiceID = nil

	inv, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, inv)
}

// CreateRecurring godoc
// @Summary      Create a recurring invoice template
// @Tags         Invoices
// @Security     BearerAuth
// @Accept       json
// @Param        body body RecurringInput true "Template"
// @Success      201 {object} RecurringInvoice
// @Router       /invoices/recurring [post]
func (h *Handler) CreateRecurring(c *gin.Context) {
	var in RecurringInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	in.CoachID = c.GetInt64("user_id")

	ri, err := h.service.CreateRecurring(c.Request.Context(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, ri)
}

// Get godoc
// @Summary      Get an invoice with items and payments
// @Tags         Invoices
// @Security     BearerAuth
// @Param        id path int true "Invoice ID"
// @Success      200 {object} Detail
// @Router       /invoices/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.service.Get(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Send godoc
// @Summary      Email an invoice to the client
// @Tags         Invoices
// @Security     BearerAuth
// @Param        id path int true "Invoice ID"
// @Success      200 {object} Invoice
// @Router       /invoices/{id}/send [post]
func (h *Handler) Send(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.Send(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

// RecordPayment godoc
// @Summary      Record a payment against an invoice
// @Tags         Invoices
// @Security     BearerAuth
// @Accept       json
// @Param        id   path int                true "Invoice ID"
// @Param        body body RecordPaymentInput true "Payment"
// @Success      200 {object} Invoice
// @Router       /invoices/{id}/payments [post]
func (h *Handler) RecordPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in RecordPaymentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	inv, err := h.service.RecordPayment(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

// Cancel godoc
// @Summary      Cancel an unpaid invoice
// @Tags         Invoices
// @Security     BearerAuth
// @Param        id path int true "Invoice ID"
// @Success      200 {object} Invoice
// @Router       /invoices/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.Cancel(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

// Document godoc
// @Summary      Printable invoice
// @Description  Returns the rendered invoice document.
// @Tags         Invoices
// @Security     BearerAuth
// @Produce      html
// @Param        id path int true "Invoice ID"
// @Router       /invoices/{id}/pdf [get]
func (h *Handler) Document(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.RenderDocument(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// ListByCoach godoc
// @Summary      Invoices issued by a coach
// @Tags         Invoices
// @Security     BearerAuth
// @Param        id     path  int    true  "Coach user ID"
// @Param        status query string false "Status filter"
// @Router       /invoices/coach/{id} [get]
func (h *Handler) ListByCoach(c *gin.Context) {
	coachID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, total, err := h.service.ListByCoach(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), coachID, listFilter(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"invoices": items, "total": total})
}

// ListByClient godoc
// @Summary      Invoices addressed to a client
// @Tags         Invoices
// @Security     BearerAuth
// @Param        id path int true "Client user ID"
// @Router       /invoices/client/{id} [get]
func (h *Handler) ListByClient(c *gin.Context) {
	clientID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, total, err := h.service.ListByClient(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), clientID, listFilter(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"invoices": items, "total": total})
}

// Metrics godoc
// @Summary      Invoice totals by status
// @Tags         Invoices
// @Security     BearerAuth
// @Param        coach_id query int false "Coach filter (admin only)"
// @Success      200 {object} Metrics
// @Router       /invoices/metrics [get]
func (h *Handler) Metrics(c *gin.Context) {
	coachID, _ := strconv.ParseInt(c.Query("coach_id"), 10, 64)
	m, err := h.service.Metrics(c.Request.Context(), c.GetInt64("user_id"), c.GetString("role"), coachID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, m)
}
