package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jackpot/internal/services"
	"jackpot/internal/testutil"
)

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, adminToken string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settings := services.DefaultSettings()
	settings.LotteryWallet = "house-wallet"
	service := services.NewLotteryService(testutil.NewTestStore(t), settings)

	r := gin.New()
	NewHTTPHandler(service, adminToken).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, header map[string]string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func purchase(wallet, signature, amount string) map[string]any {
	return map[string]any{
		"walletAddress":        wallet,
		"transactionSignature": signature,
		"amount":               amount,
	}
}

func TestPurchaseTicket(t *testing.T) {
	r := newTestRouter(t, "")

	status, env := do(t, r, http.MethodPost, "/api/tickets", purchase("alice", "sig-1", "0.3"), nil)
	require.Equal(t, http.StatusOK, status)
	var result services.PurchaseResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.EqualValues(t, 3, result.TicketsPurchased)
	assert.EqualValues(t, 1, result.RoundNumber)

	t.Run("duplicate payment", func(t *testing.T) {
		status, env := do(t, r, http.MethodPost, "/api/tickets", purchase("alice", "sig-1", "0.3"), nil)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "duplicate_payment", env.Code)
	})

	t.Run("below minimum", func(t *testing.T) {
		status, env := do(t, r, http.MethodPost, "/api/tickets", purchase("bob", "sig-2", "0.05"), nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "below_minimum", env.Code)
	})

	t.Run("missing wallet", func(t *testing.T) {
		status, env := do(t, r, http.MethodPost, "/api/tickets", map[string]any{"transactionSignature": "sig-3", "amount": 1}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_request", env.Code)
	})

	t.Run("current round reflects the purchase", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/rounds/current", nil, nil)
		require.Equal(t, http.StatusOK, status)
		var round struct {
			ID          string `json:"id"`
			TotalAmount string `json:"totalAmount"`
			TicketsSold int64  `json:"ticketsSold"`
			Status      string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &round))
		assert.Equal(t, result.RoundID, round.ID)
		assert.Equal(t, "0.3", round.TotalAmount)
		assert.EqualValues(t, 3, round.TicketsSold)
		assert.Equal(t, "active", round.Status)

		status, env = do(t, r, http.MethodGet, "/api/rounds/"+round.ID, nil, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", env.Code)
	})

	t.Run("wallet tickets", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/tickets?wallet=alice", nil, nil)
		require.Equal(t, http.StatusOK, status)
		var tickets []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &tickets))
		require.Len(t, tickets, 1)
		assert.Equal(t, "sig-1", tickets[0]["transactionSignature"])

		status, _ = do(t, r, http.MethodGet, "/api/tickets?wallet=alice&scope=all", nil, nil)
		assert.Equal(t, http.StatusOK, status)

		status, env = do(t, r, http.MethodGet, "/api/tickets?wallet=alice&scope=forever", nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_request", env.Code)

		status, _ = do(t, r, http.MethodGet, "/api/tickets", nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("stats", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/stats", nil, nil)
		require.Equal(t, http.StatusOK, status)
		var stats map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &stats))
		assert.Equal(t, "0.3", stats["currentJackpot"])
		assert.Equal(t, "0.1", stats["ticketPrice"])
		assert.Equal(t, "house-wallet", stats["lotteryWallet"])
	})
}

func TestPurchaseTicket_PoolOverflow(t *testing.T) {
	r := newTestRouter(t, "")

	status, _ := do(t, r, http.MethodPost, "/api/tickets", purchase("whale", "sig-1", "9223372036"), nil)
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, r, http.MethodPost, "/api/tickets", purchase("whale", "sig-2", "1"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "pool_overflow", env.Code)
}

func TestRoundRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	t.Run("no current round", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/rounds/current", nil, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "null", string(env.Data))
	})

	t.Run("create or get active round", func(t *testing.T) {
		status, first := do(t, r, http.MethodPost, "/api/rounds/active", nil, nil)
		require.Equal(t, http.StatusOK, status)
		status, second := do(t, r, http.MethodPost, "/api/rounds/active", nil, nil)
		require.Equal(t, http.StatusOK, status)

		var a, b struct {
			ID          string `json:"id"`
			RoundNumber int64  `json:"roundNumber"`
		}
		require.NoError(t, json.Unmarshal(first.Data, &a))
		require.NoError(t, json.Unmarshal(second.Data, &b))
		assert.Equal(t, a, b)
		assert.EqualValues(t, 1, a.RoundNumber)
	})

	t.Run("check expired with nothing due", func(t *testing.T) {
		status, env := do(t, r, http.MethodPost, "/api/rounds/check-expired", nil, nil)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"processed":false,"roundIds":[]}`, string(env.Data))
	})

	t.Run("unknown round", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/rounds/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "round_not_found", env.Code)
	})

	t.Run("history", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/history", nil, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "[]", string(env.Data))

		status, env = do(t, r, http.MethodGet, "/api/history?limit=-1", nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_request", env.Code)
	})

	t.Run("health", func(t *testing.T) {
		status, _ := do(t, r, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestAdminReset(t *testing.T) {
	t.Run("disabled without a token", func(t *testing.T) {
		r := newTestRouter(t, "")
		status, env := do(t, r, http.MethodPost, "/admin/reset", nil, map[string]string{"X-Admin-Token": ""})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "admin_disabled", env.Code)
	})

	r := newTestRouter(t, "s3cret")
	status, _ := do(t, r, http.MethodPost, "/api/tickets", purchase("alice", "sig-1", "1"), nil)
	require.Equal(t, http.StatusOK, status)

	t.Run("wrong token", func(t *testing.T) {
		status, env := do(t, r, http.MethodPost, "/admin/reset", nil, map[string]string{"X-Admin-Token": "guess"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", env.Code)
	})

	t.Run("resets the ledger", func(t *testing.T) {
		status, _ := do(t, r, http.MethodPost, "/admin/reset", nil, map[string]string{"X-Admin-Token": "s3cret"})
		require.Equal(t, http.StatusOK, status)

		status, env := do(t, r, http.MethodGet, "/api/rounds/current", nil, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "null", string(env.Data))
	})
}
