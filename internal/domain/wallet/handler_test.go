package wallet

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCoachID int64 = 42

func setupTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := NewService(setupTestDB(t, "wallet_handler_test"), "USD", nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-Coach") != "" {
			c.Set("user_id", testCoachID)
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, svc
}

func call(r http.Handler, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("X-Test-Coach", "1")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, into any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.True(t, env.Success, rr.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func TestWalletRoutesRequireCaller(t *testing.T) {
	r, _ := setupTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/wallets/me"},
		{http.MethodGet, "/api/v1/wallets/me/transactions"},
		{http.MethodPost, "/api/v1/wallets/me/payouts"},
	} {
		rr := call(r, tc.method, tc.path, map[string]any{"amount_cents": 10}, false)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestWalletRoutes(t *testing.T) {
	r, svc := setupTestRouter(t)

	var wallet Wallet
	rr := call(r, http.MethodGet, "/api/v1/wallets/me", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeData(t, rr, &wallet)
	assert.Zero(t, wallet.BalanceCents)
	assert.Equal(t, testCoachID, wallet.CoachID)

	_, _, err := svc.Credit(context.Background(), testCoachID, 150, "payment:1", nil)
	require.NoError(t, err)

	rr = call(r, http.MethodPost, "/api/v1/wallets/me/payouts", map[string]any{"amount_cents": -5}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(r, http.MethodPost, "/api/v1/wallets/me/payouts", map[string]any{"amount_cents": 500}, true)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "CONFLICT")

	var payout struct {
		Wallet      Wallet `json:"wallet"`
		Transaction Entry  `json:"transaction"`
	}
	rr = call(r, http.MethodPost, "/api/v1/wallets/me/payouts", map[string]any{"amount_cents": 40}, true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decodeData(t, rr, &payout)
	assert.EqualValues(t, 110, payout.Wallet.BalanceCents)
	assert.Equal(t, EntryPayout, payout.Transaction.Type)

	var history struct {
		Transactions []Entry `json:"transactions"`
	}
	rr = call(r, http.MethodGet, "/api/v1/wallets/me/transactions?limit=10", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeData(t, rr, &history)
	require.Len(t, history.Transactions, 2)
	assert.Equal(t, EntryPayout, history.Transactions[0].Type)
	assert.Equal(t, EntryEarning, history.Transactions[1].Type)
}
