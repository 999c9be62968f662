package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"referral-rewards-backend/internal/common/middleware"
	"referral-rewards-backend/internal/features/leaderboard/service"
)

type LeaderboardHandler struct {
	service *service.Service
}

func NewLeaderboardHandler(service *service.Service) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

func (h *LeaderboardHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/leaderboard", h.getLeaderboard)

	seasons := router.Group("/seasons")
	{
		seasons.GET("", h.listSeasons)
		seasons.GET("/:id", h.getSeason)
	}
}

// @Summary Active period leaderboard
// @Description Dense-ranked standings over the active period's ledger
// @Tags leaderboard
// @Produce json
// @Param limit query int false "Page size (max 100)" default(50)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} models.Leaderboard
// @Failure 404 {object} middleware.ErrorResponse "No active period"
// @Router /leaderboard [get]
func (h *LeaderboardHandler) getLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	board, err := h.service.GetLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// @Summary List archived seasons
// @Tags leaderboard
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {array} models.ArchiveSummary
// @Router /seasons [get]
func (h *LeaderboardHandler) listSeasons(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	seasons, err := h.service.ListArchives(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, seasons)
}

// @Summary Archived season standings
// @Description The frozen rankings of one completed period
// @Tags leaderboard
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} models.PeriodArchive
// @Failure 404 {object} middleware.ErrorResponse "Season not archived"
// @Router /seasons/{id} [get]
func (h *LeaderboardHandler) getSeason(c *gin.Context) {
	archive, err := h.service.GetArchive(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, archive)
}
