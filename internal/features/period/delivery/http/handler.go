package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/common/middleware"
	"referral-rewards-backend/internal/features/period/models"
	"referral-rewards-backend/internal/features/period/service"
)

type PeriodHandler struct {
	service *service.Service
}

func NewPeriodHandler(service *service.Service) *PeriodHandler {
	return &PeriodHandler{service: service}
}

func (h *PeriodHandler) RegisterRoutes(router *gin.RouterGroup) {
	periods := router.Group("/admin/periods")
	{
		periods.POST("", h.create)
		periods.GET("", h.list)
		periods.GET("/:id", h.getByID)
		periods.PATCH("/:id", h.update)
		periods.DELETE("/:id", h.delete)
		periods.POST("/:id/activate", h.activate)
		periods.POST("/:id/complete", h.complete)
		periods.POST("/:id/cancel", h.cancel)
		periods.GET("/:id/stats", h.stats)
	}

	router.GET("/period", h.active)
}

// @Summary Get the active period
// @Description The currently running period with its strategy ruleset and referee benefits
// @Tags period
// @Produce json
// @Success 200 {object} models.ReferralPeriod
// @Failure 404 {object} middleware.ErrorResponse "No active period"
// @Router /period [get]
func (h *PeriodHandler) active(c *gin.Context) {
	period, err := h.service.GetActivePeriod(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

// @Summary Create a draft period
// @Description Creates a new referral period in draft status with a validated strategy ruleset
// @Tags admin
// @Accept json
// @Produce json
// @Param input body models.PeriodCreate true "Period definition"
// @Success 201 {object} models.ReferralPeriod
// @Failure 400 {object} middleware.ErrorResponse "Validation error"
// @Failure 422 {object} middleware.ErrorResponse "Unsupported strategy"
// @Router /admin/periods [post]
func (h *PeriodHandler) create(c *gin.Context) {
	var input models.PeriodCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	period, err := h.service.CreatePeriod(c.Request.Context(), &input)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, period)
}

// @Summary List periods
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status (draft, active, completed, cancelled)"
// @Success 200 {array} models.ReferralPeriod
// @Router /admin/periods [get]
func (h *PeriodHandler) list(c *gin.Context) {
	periods, err := h.service.ListPeriods(c.Request.Context(), c.Query("status"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, periods)
}

// @Summary Get a period
// @Tags admin
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} models.ReferralPeriod
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/periods/{id} [get]
func (h *PeriodHandler) getByID(c *gin.Context) {
	period, err := h.service.GetPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

// @Summary Update a draft period
// @Description Patches a period's ruleset. Only drafts can be changed.
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param input body models.PeriodUpdate true "Fields to patch"
// @Success 200 {object} models.ReferralPeriod
// @Failure 422 {object} middleware.ErrorResponse "Period is not a draft"
// @Router /admin/periods/{id} [patch]
func (h *PeriodHandler) update(c *gin.Context) {
	var input models.PeriodUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	period, err := h.service.UpdatePeriod(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

// @Summary Delete a draft period
// @Tags admin
// @Param id path string true "Period ID"
// @Success 204 "Deleted"
// @Failure 422 {object} middleware.ErrorResponse "Period is not a draft"
// @Router /admin/periods/{id} [delete]
func (h *PeriodHandler) delete(c *gin.Context) {
	if err := h.service.DeletePeriod(c.Request.Context(), c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Activate a draft period
// @Description Starts the competition. Fails with 409 when another period is already active.
// @Tags admin
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} models.ReferralPeriod
// @Failure 409 {object} middleware.ErrorResponse "Another period is active"
// @Router /admin/periods/{id}/activate [post]
func (h *PeriodHandler) activate(c *gin.Context) {
	period, err := h.service.ActivatePeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

type completeRequest struct {
	ChainNext bool `json:"chain_next"`
}

// @Summary Complete an active period
// @Description Freezes standings into an archive. With chain_next a successor period starts immediately.
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param input body completeRequest false "Completion options"
// @Success 200 {object} models.CompletionResult
// @Router /admin/periods/{id}/complete [post]
func (h *PeriodHandler) complete(c *gin.Context) {
	var input completeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "invalid request body"))
			return
		}
	}

	result, err := h.service.CompletePeriod(c.Request.Context(), c.Param("id"), input.ChainNext)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Cancel a draft period
// @Description Abandons an unstarted draft; no archive is written
// @Tags admin
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} models.ReferralPeriod
// @Router /admin/periods/{id}/cancel [post]
func (h *PeriodHandler) cancel(c *gin.Context) {
	period, err := h.service.CancelPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

// @Summary Period statistics
// @Tags admin
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} models.PeriodStats
// @Router /admin/periods/{id}/stats [get]
func (h *PeriodHandler) stats(c *gin.Context) {
	stats, err := h.service.GetPeriodStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
