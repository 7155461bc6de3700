package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"playerwallet/internal/config"
	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/internal/model"
	"playerwallet/internal/repository/memory"
	"playerwallet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router http.Handler
	store  *memory.Store
	tokens *service.TokenIssuer
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{BodyLimit: 1 << 20, AllowOrigin: "*"},
		Wallet: config.WalletConfig{InitialCashInLimit: 300000, TransactionTimeout: time.Second, MaxAttempts: 3},
		Auth:   config.AuthConfig{ResetTokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
		Kafka:  config.KafkaConfig{Topic: config.KafkaTopicConfig{WalletTransaction: "wallet.transaction"}},
	}
	if mutate != nil {
		mutate(cfg)
	}

	store := memory.NewStore()
	m := metrics.New()
	tokens := service.NewTokenIssuer("handler-test", time.Hour)

	h := NewHandler(
		service.NewWalletService(store, cfg.Wallet, cfg.Kafka.Topic.WalletTransaction, service.WithMetrics(m)),
		service.NewHistoryService(store),
		service.NewAuthService(store, store.Resets(), nil, tokens, m, cfg.Auth, cfg.Wallet),
		service.NewMessageService(store.Messages()),
		cfg,
	)
	return &testServer{router: SetupRouter(h, m, cfg), store: store, tokens: tokens}
}

func (s *testServer) seed(credit, limit string) *model.Player {
	return s.store.Seed(&model.Player{
		Code:        fmt.Sprintf("PLR-%d", time.Now().UnixNano()),
		FirstName:   "Ana",
		LastName:    "Cruz",
		Email:       "ana@example.com",
		Credit:      decimal.RequireFromString(credit),
		CashInLimit: decimal.RequireFromString(limit),
	})
}

func (s *testServer) do(method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func transaction(playerID int64, typ string, amount interface{}) gin.H {
	return gin.H{"playerId": playerID, "type": typ, "amount": amount, "paymentMethod": "gcash"}
}

func TestWalletScenario(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.seed("1000", "5000")

	w, body := s.do(http.MethodGet, fmt.Sprintf("/api/payments/stats?playerId=%d", p.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 1000.0, data["balance"])
	assert.Equal(t, 5000.0, data["cashInLimit"])

	w, body = s.do(http.MethodPost, "/api/payments/transaction", transaction(p.ID, "CASH_IN", 200))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Transaction processed successfully", body["message"])
	data = body["data"].(map[string]interface{})
	assert.NotZero(t, data["transactionId"])
	assert.NotEmpty(t, data["transactionCode"])
	assert.Equal(t, 1200.0, data["balance"])

	w, body = s.do(http.MethodPost, "/api/payments/transaction", transaction(p.ID, "CASH_OUT", "1500"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "Insufficient balance", body["message"])

	w, _ = s.do(http.MethodPost, "/api/payments/transaction", transaction(p.ID, "CASH_OUT", 1200))
	require.Equal(t, http.StatusOK, w.Code)

	_, body = s.do(http.MethodGet, fmt.Sprintf("/api/payments/stats?playerId=%d", p.ID), nil)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, 0.0, data["balance"])
	assert.Equal(t, 4800.0, data["cashInLimit"])

	w, body = s.do(http.MethodGet, fmt.Sprintf("/history?playerId=%d", p.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := body["data"].([]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, "CASH_OUT", entries[0].(map[string]interface{})["type"])
	assert.Equal(t, "CASH_IN", entries[1].(map[string]interface{})["type"])
}

func TestProcessTransaction_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.seed("0", "100")

	tests := []struct {
		name   string
		body   interface{}
		status int
		msg    string
	}{
		{"missing amount", gin.H{"playerId": p.ID, "type": "CASH_IN", "paymentMethod": "gcash"}, http.StatusBadRequest, "Missing required fields"},
		{"missing player", gin.H{"type": "CASH_IN", "amount": 1, "paymentMethod": "gcash"}, http.StatusBadRequest, "Missing required fields"},
		{"bad type", transaction(p.ID, "REFUND", 1), http.StatusBadRequest, "Invalid transaction type"},
		{"zero amount", transaction(p.ID, "CASH_IN", 0), http.StatusBadRequest, "Amount must be greater than zero"},
		{"limit", transaction(p.ID, "CASH_IN", 101), http.StatusBadRequest, "Cash in limit exceeded"},
		{"unknown player", transaction(p.ID+100, "CASH_IN", 1), http.StatusNotFound, "Player not found"},
		{"malformed body", `{"playerId":`, http.StatusBadRequest, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(http.MethodPost, "/api/payments/transaction", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.msg, body["message"])
		})
	}

	// 被拒绝的请求不产生流水
	_, body := s.do(http.MethodGet, fmt.Sprintf("/history?playerId=%d", p.ID), nil)
	assert.Empty(t, body["data"])
}

func TestGetStats_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodGet, "/api/payments/stats", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Player ID is required", body["message"])

	w, body = s.do(http.MethodGet, "/api/payments/stats?playerId=42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Player profile not found. Please contact support.", body["message"])

	w, _ = s.do(http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistoryByCode(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.seed("0", "1000")

	_, body := s.do(http.MethodPost, "/api/payments/transaction", transaction(p.ID, "CASH_IN", "10.50"))
	code := body["data"].(map[string]interface{})["transactionCode"].(string)

	w, body := s.do(http.MethodGet, "/history/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entry := body["data"].(map[string]interface{})
	assert.Equal(t, code, entry["transaction_code"])
	assert.Equal(t, "gcash", entry["channel"])

	w, body = s.do(http.MethodGet, "/history/TXN-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Transaction not found", body["message"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Auth.ExposeResetToken = true })

	w, body := s.do(http.MethodPost, "/register", gin.H{
		"first_name": "Ana",
		"last_name":  "Cruz",
		"email":      "ana@example.com",
		"birthdate":  "1990-04-01",
		"password":   "secret1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Registration successful.", body["message"])
	assert.NotEmpty(t, body["token"])
	playerID := int64(body["playerId"].(float64))

	_, body = s.do(http.MethodGet, fmt.Sprintf("/api/payments/stats?playerId=%d", playerID), nil)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 0.0, data["balance"])
	assert.Equal(t, 300000.0, data["cashInLimit"])

	w, body = s.do(http.MethodPost, "/register", gin.H{
		"first_name": "Other",
		"last_name":  "Person",
		"email":      "ANA@example.com",
		"birthdate":  "1991-01-01",
		"password":   "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email is already registered.", body["message"])

	w, body = s.do(http.MethodPost, "/login", gin.H{"email": "ana@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "Ana Cruz", user["name"])
	assert.Equal(t, "ana@example.com", user["email"])

	w, body = s.do(http.MethodPost, "/login", gin.H{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials.", body["message"])

	w, body = s.do(http.MethodPost, "/forgot-password", gin.H{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := body["token"].(string)
	require.Len(t, token, 6)

	w, body = s.do(http.MethodPost, "/reset-password", gin.H{"email": "ana@example.com", "token": token, "newPassword": "newpass"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Password has been reset successfully.", body["message"])

	w, _ = s.do(http.MethodPost, "/login", gin.H{"email": "ana@example.com", "password": "newpass"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(http.MethodPost, "/forgot-password", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Email not found.", body["message"])
}

func TestForgotPassword_HidesToken(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(http.MethodPost, "/register", gin.H{
		"first_name": "Ana", "last_name": "Cruz", "email": "ana@example.com",
		"birthdate": "1990-04-01", "password": "secret1",
	})

	w, body := s.do(http.MethodPost, "/forgot-password", gin.H{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	_, exposed := body["token"]
	assert.False(t, exposed)
}

func TestGoogleLogin_NotConfigured(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodPost, "/auth/google", gin.H{"idToken": "abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid Google token.", body["message"])
}

func TestMessages(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.seed("0", "0")
	own := s.store.Messages().Post(&p.ID, "Welcome")
	s.store.Messages().Post(nil, "Broadcast")

	w, body := s.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", p.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, body = s.do(http.MethodPut, fmt.Sprintf("/api/messages/%d/read", own.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Message marked as read", body["message"])

	w, body = s.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d", own.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Message deleted", body["message"])

	w, body = s.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d", own.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Message not found", body["message"])

	w, _ = s.do(http.MethodGet, "/api/messages/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Auth.RequireToken = true })
	p := s.seed("100", "100")
	other := s.seed("100", "100")
	stats := fmt.Sprintf("/api/payments/stats?playerId=%d", p.ID)

	w, _ := s.do(http.MethodGet, stats, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, stats, nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := s.tokens.Issue(p)
	require.NoError(t, err)
	w, _ = s.do(http.MethodGet, stats, nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(http.MethodPost, "/api/payments/transaction", transaction(other.ID, "CASH_OUT", 1), "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, body["ok"])
}

func TestGlueRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	w, body = s.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", body["message"])

	w, _ = s.do(http.MethodOptions, "/api/payments/transaction", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = s.do(http.MethodGet, "/health", nil, "X-Request-ID", "req-1")
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w, _ = s.do(http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	p := s.seed("0", "100")
	s.do(http.MethodPost, "/api/payments/transaction", transaction(p.ID, "CASH_IN", 5))
	w, _ = s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "player_wallet_")
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Server.BodyLimit = 64 })

	big := `{"email":"` + strings.Repeat("a", 200) + `@example.com","password":"x"}`
	w, body := s.do(http.MethodPost, "/login", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Request body too large", body["message"])
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), RecoveryMiddleware())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"ok":false,"message":"Internal server error"}`, w.Body.String())
}

func TestClassify(t *testing.T) {
	status, msg := classify(fmt.Errorf("%w: lock wait", service.ErrTimeout))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, service.ErrTimeout.Error(), msg)

	status, _ = classify(fmt.Errorf("%w: deadlock", service.ErrConflict))
	assert.Equal(t, http.StatusConflict, status)

	status, msg = classify(fmt.Errorf("%w: connection refused", service.ErrStorage))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", msg)

	status, msg = classify(&service.InputError{Message: "Invalid transaction type"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid transaction type", msg)
}

func TestMessageWrites_RequireOwner(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Auth.RequireToken = true })
	owner := s.seed("0", "0")
	other := s.seed("0", "0")
	own := s.store.Messages().Post(&owner.ID, "Your withdrawal is approved")
	broadcast := s.store.Messages().Post(nil, "Maintenance tonight")

	otherToken, _, err := s.tokens.Issue(other)
	require.NoError(t, err)
	ownerToken, _, err := s.tokens.Issue(owner)
	require.NoError(t, err)
	asOther := []string{"Authorization", "Bearer " + otherToken}
	asOwner := []string{"Authorization", "Bearer " + ownerToken}

	w, _ := s.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d", own.ID), nil, asOther...)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPut, fmt.Sprintf("/api/messages/%d/read", own.ID), nil, asOther...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 广播消息玩家不能删除或标记
	w, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d", broadcast.ID), nil, asOwner...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/messages/999", nil, asOther...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, body := s.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", owner.ID), nil, asOwner...)
	require.Len(t, body["data"], 2)
	for _, m := range body["data"].([]interface{}) {
		assert.Equal(t, false, m.(map[string]interface{})["read"])
	}

	w, _ = s.do(http.MethodPut, fmt.Sprintf("/api/messages/%d/read", own.ID), nil, asOwner...)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d", own.ID), nil, asOwner...)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProcessTransaction_StringPlayerID(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.seed("0", "100")

	w, body := s.do(http.MethodPost, "/api/payments/transaction", gin.H{
		"playerId": fmt.Sprintf("%d", p.ID), "type": "CASH_IN", "amount": "25", "paymentMethod": "gcash",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25.0, body["data"].(map[string]interface{})["balance"])

	w, body = s.do(http.MethodPost, "/api/payments/transaction", gin.H{
		"playerId": "abc", "type": "CASH_IN", "amount": 1, "paymentMethod": "gcash",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", body["message"])

	w, body = s.do(http.MethodPost, "/api/payments/transaction", gin.H{
		"playerId": "", "type": "CASH_IN", "amount": 1, "paymentMethod": "gcash",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", body["message"])
}
