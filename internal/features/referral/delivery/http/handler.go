package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/common/middleware"
	"referral-rewards-backend/internal/features/referral/models"
	"referral-rewards-backend/internal/features/referral/service"
)

type ReferralHandler struct {
	service *service.Service
}

func NewReferralHandler(service *service.Service) *ReferralHandler {
	return &ReferralHandler{service: service}
}

func (h *ReferralHandler) RegisterRoutes(router *gin.RouterGroup) {
	referral := router.Group("/referral")
	referral.Use(middleware.Wallet())
	{
		referral.POST("/code", h.getOrCreateCode)
		referral.POST("/signup", h.registerSignup)
		referral.GET("/referrals", h.listReferrals)
		referral.GET("/me", h.myStats)
	}

	// Ingest endpoint for trading systems that push over HTTP instead of the
	// event stream.
	router.POST("/events", h.ingestEvent)
}

// @Summary Get or mint the caller's referral code
// @Tags referral
// @Produce json
// @Param X-Wallet header string true "Caller's TON wallet address"
// @Success 200 {object} models.ReferralCode
// @Failure 400 {object} middleware.ErrorResponse "Invalid wallet"
// @Router /referral/code [post]
func (h *ReferralHandler) getOrCreateCode(c *gin.Context) {
	code, err := h.service.GetOrCreateCode(c.Request.Context(), middleware.WalletFrom(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

type signupRequest struct {
	Code string `json:"code" binding:"required"`
}

// @Summary Register a referred signup
// @Description Links the caller's wallet to the owner of the given code
// @Tags referral
// @Accept json
// @Produce json
// @Param X-Wallet header string true "Caller's TON wallet address"
// @Param input body signupRequest true "Referral code"
// @Success 201 {object} models.ReferralLink
// @Failure 404 {object} middleware.ErrorResponse "Unknown code"
// @Failure 409 {object} middleware.ErrorResponse "Wallet already referred"
// @Router /referral/signup [post]
func (h *ReferralHandler) registerSignup(c *gin.Context) {
	var input signupRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	link, err := h.service.RegisterSignup(c.Request.Context(), input.Code, middleware.WalletFrom(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

// @Summary List the caller's referrals
// @Tags referral
// @Produce json
// @Param X-Wallet header string true "Caller's TON wallet address"
// @Success 200 {array} models.ReferralInfo
// @Router /referral/referrals [get]
func (h *ReferralHandler) listReferrals(c *gin.Context) {
	infos, err := h.service.ListReferrals(c.Request.Context(), middleware.WalletFrom(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

// @Summary The caller's standing in the active period
// @Tags referral
// @Produce json
// @Param X-Wallet header string true "Caller's TON wallet address"
// @Success 200 {object} models.ReferralStats
// @Router /referral/me [get]
func (h *ReferralHandler) myStats(c *gin.Context) {
	stats, err := h.service.GetMyStats(c.Request.Context(), middleware.WalletFrom(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Ingest a trading event
// @Description Accepts a signup or bet event and applies it to the active period
// @Tags events
// @Accept json
// @Param input body models.TradingEvent true "Event payload"
// @Success 202 "Accepted"
// @Failure 400 {object} middleware.ErrorResponse "Malformed event"
// @Router /events [post]
func (h *ReferralHandler) ingestEvent(c *gin.Context) {
	var event models.TradingEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	wallet, err := middleware.NormalizeWallet(event.Wallet)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	event.Wallet = wallet

	if err := h.service.ProcessEvent(c.Request.Context(), &event); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
