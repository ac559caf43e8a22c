package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"jackpot/internal/models"
	"jackpot/internal/services"
	"jackpot/internal/store"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service    *services.LotteryService
	adminToken string
}

// NewHTTPHandler creates a new HTTPHandler. An empty adminToken disables the
// admin routes.
func NewHTTPHandler(service *services.LotteryService, adminToken string) *HTTPHandler {
	return &HTTPHandler{
		service:    service,
		adminToken: adminToken,
	}
}

type apiResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{Code: "ok", Message: "ok", Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, apiResponse{Code: code, Message: message})
}

// failWith maps a service error to a status and a stable code, so a client can
// tell "already credited" apart from "rejected".
func failWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrDuplicatePayment):
		fail(c, http.StatusConflict, "duplicate_payment", err.Error())
	case errors.Is(err, services.ErrBelowMinimum):
		fail(c, http.StatusBadRequest, "below_minimum", err.Error())
	case errors.Is(err, services.ErrPoolOverflow):
		fail(c, http.StatusUnprocessableEntity, "pool_overflow", err.Error())
	case errors.Is(err, services.ErrInvalidPurchase):
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, services.ErrPaymentUnverified):
		fail(c, http.StatusPaymentRequired, "payment_unverified", err.Error())
	case errors.Is(err, services.ErrRoundNotFound):
		fail(c, http.StatusNotFound, "round_not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		fail(c, http.StatusServiceUnavailable, "conflict", "the ledger is busy, please retry")
	case errors.Is(err, services.ErrInconsistentState):
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		fail(c, http.StatusInternalServerError, "inconsistent_state", err.Error())
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		fail(c, http.StatusInternalServerError, "internal", "internal error")
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.GET("/rounds/current", h.GetCurrentRound)
	api.POST("/rounds/active", h.CreateOrGetActiveRound)
	api.POST("/rounds/check-expired", h.CheckAndRollExpired)
	api.GET("/rounds/:id", h.GetRound)
	api.GET("/stats", h.GetLotteryStats)
	api.GET("/history", h.GetHistory)
	api.GET("/tickets", h.GetUserTickets)
	api.POST("/tickets", h.PurchaseTicket)

	admin := router.Group("/admin", h.AdminMiddleware())
	admin.POST("/reset", h.ResetAll)
}

// AdminMiddleware requires the configured token in the X-Admin-Token header.
func (h *HTTPHandler) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" {
			fail(c, http.StatusForbidden, "admin_disabled", "admin routes are disabled")
			return
		}
		token := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			fail(c, http.StatusUnauthorized, "unauthorized", "invalid admin token")
			return
		}
		c.Next()
	}
}

// Health pings the ledger.
func (h *HTTPHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.service.Ping(ctx); err != nil {
		logger.Warningf("Health check failed: %v", err)
		fail(c, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
		return
	}
	ok(c, gin.H{"status": "ok", "timestamp": time.Now().Unix()})
}

// GetCurrentRound returns the active round, or null data when there is none.
func (h *HTTPHandler) GetCurrentRound(c *gin.Context) {
	round, err := h.service.CurrentRound(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	if round == nil {
		c.JSON(http.StatusOK, gin.H{"code": "ok", "message": "no active round", "data": nil})
		return
	}
	ok(c, round)
}

// CreateOrGetActiveRound returns the running round, opening one if needed.
func (h *HTTPHandler) CreateOrGetActiveRound(c *gin.Context) {
	round, err := h.service.EnsureActiveRound(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, round)
}

// CheckAndRollExpired draws any expired round on demand.
func (h *HTTPHandler) CheckAndRollExpired(c *gin.Context) {
	result, err := h.service.SweepExpired(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, result)
}

func (h *HTTPHandler) GetRound(c *gin.Context) {
	round, err := h.service.GetRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, round)
}

func (h *HTTPHandler) GetLotteryStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, stats)
}

// GetHistory returns completed rounds; ?limit= defaults to 10.
func (h *HTTPHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rounds, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, rounds)
}

// GetUserTickets returns a wallet's tickets in the current round, or in every
// round with ?scope=all.
func (h *HTTPHandler) GetUserTickets(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		fail(c, http.StatusBadRequest, "invalid_request", "wallet is required")
		return
	}

	var (
		tickets []models.Ticket
		err     error
	)
	switch c.DefaultQuery("scope", "current") {
	case "current":
		tickets, err = h.service.UserTickets(c.Request.Context(), wallet)
	case "all":
		tickets, err = h.service.WalletTickets(c.Request.Context(), wallet)
	default:
		fail(c, http.StatusBadRequest, "invalid_request", "scope must be current or all")
		return
	}
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, tickets)
}

type purchaseRequest struct {
	WalletAddress        string          `json:"walletAddress" binding:"required"`
	TransactionSignature string          `json:"transactionSignature" binding:"required"`
	Amount               models.Lamports `json:"amount"`
}

// PurchaseTicket credits a settled payment to the running round.
func (h *HTTPHandler) PurchaseTicket(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.Purchase(c.Request.Context(), services.PurchaseRequest{
		WalletAddress:        req.WalletAddress,
		TransactionSignature: req.TransactionSignature,
		Amount:               req.Amount,
	})
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, result)
}

// ResetAll deletes every round and ticket.
func (h *HTTPHandler) ResetAll(c *gin.Context) {
	if err := h.service.ResetAll(c.Request.Context()); err != nil {
		failWith(c, err)
		return
	}
	ok(c, gin.H{"success": true, "message": "Database reset successfully"})
}
