package profile

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/pkg/response"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListCoachRates godoc
// @Summary      Published rates of a coach
// @Tags         Coaches
// @Produce      json
// @Param        id path int true "Coach user ID"
// @Success      200 {object} map[string]interface{}
// @Router       /coaches/{id}/rates [get]
func (h *Handler) ListCoachRates(c *gin.Context) {
	coachID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || coachID <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid coach ID")
		return
	}

	coach, err := h.repo.GetActiveCoach(c.Request.Context(), coachID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrCoachInactive) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "Coach not found")
			return
		}
		response.FromError(c, err)
		return
	}

	rates, err := h.repo.ListCoachRates(c.Request.Context(), coachID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"coach": coach, "rates": rates})
}
