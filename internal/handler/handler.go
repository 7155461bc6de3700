package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"playerwallet/internal/config"
	"playerwallet/internal/service"
	"playerwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	walletService  *service.WalletService
	historyService *service.HistoryService
	authService    *service.AuthService
	messageService *service.MessageService
	cfg            *config.Config
}

// NewHandler 创建处理器实例
func NewHandler(
	wallet *service.WalletService,
	history *service.HistoryService,
	auth *service.AuthService,
	messages *service.MessageService,
	cfg *config.Config,
) *Handler {
	return &Handler{
		walletService:  wallet,
		historyService: history,
		authService:    auth,
		messageService: messages,
		cfg:            cfg,
	}
}

// 错误到 HTTP 状态码的映射，按顺序匹配
var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrInsufficientFunds, http.StatusBadRequest},
	{service.ErrLimitExceeded, http.StatusBadRequest},
	{service.ErrEmailTaken, http.StatusBadRequest},
	{service.ErrDuplicatePlayer, http.StatusBadRequest},
	{service.ErrInvalidResetToken, http.StatusBadRequest},
	{service.ErrResetTokenExpired, http.StatusBadRequest},
	{service.ErrPlayerNotFound, http.StatusNotFound},
	{service.ErrTransactionNotFound, http.StatusNotFound},
	{service.ErrMessageNotFound, http.StatusNotFound},
	{service.ErrEmailNotFound, http.StatusNotFound},
	{service.ErrConflict, http.StatusConflict},
	{service.ErrGoogleAccountTaken, http.StatusConflict},
	{service.ErrTimeout, http.StatusServiceUnavailable},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidGoogleToken, http.StatusUnauthorized},
	{service.ErrUnauthorized, http.StatusUnauthorized},
}

// classify 返回状态码和给客户端的提示，未识别的错误一律 500
func classify(err error) (int, string) {
	var inputErr *service.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest, inputErr.Message
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeError(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[Handler] %s %s failed: request_id=%s, err=%v",
			c.Request.Method, c.FullPath(), c.GetString(requestIDKey), err)
	}
	response.Error(c, status, message)
}

// bindJSON 解析请求体，失败时已写出响应
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		response.ParamError(c, "Invalid request body")
		return false
	}
	return true
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func amountValue(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetStats 查询余额和剩余入金额度
// GET /api/payments/stats?playerId=xxx
func (h *Handler) GetStats(c *gin.Context) {
	playerID, ok := parseID(c.Query("playerId"))
	if !ok {
		response.ParamError(c, "Player ID is required")
		return
	}
	if !h.authorizePlayer(c, playerID) {
		return
	}

	stats, err := h.walletService.GetWalletStats(c.Request.Context(), playerID)
	if err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			response.NotFound(c, "Player profile not found. Please contact support.")
			return
		}
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"balance":     amountValue(stats.Balance),
		"cashInLimit": amountValue(stats.CashInLimit),
	})
}

// flexibleID 兼容 12 和 "12" 两种写法
type flexibleID int64

func (p *flexibleID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*p = 0
		return nil
	}
	raw = strings.TrimSpace(strings.Trim(raw, `"`))
	if raw == "" {
		*p = 0
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid player id %q: %w", raw, err)
	}
	*p = flexibleID(id)
	return nil
}

// TransactionRequest 入金 / 出金请求体
type TransactionRequest struct {
	PlayerID      flexibleID       `json:"playerId"`
	Type          string           `json:"type"`
	Amount        *decimal.Decimal `json:"amount"`
	PaymentMethod string           `json:"paymentMethod"`
	Provider      string           `json:"provider"`
}

// ProcessTransaction 入金 / 出金
// POST /api/payments/transaction
func (h *Handler) ProcessTransaction(c *gin.Context) {
	var req TransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	id := int64(req.PlayerID)
	if id <= 0 || req.Type == "" || req.Amount == nil || req.PaymentMethod == "" {
		response.ParamError(c, "Missing required fields")
		return
	}
	if !h.authorizePlayer(c, id) {
		return
	}

	result, err := h.walletService.ProcessTransaction(c.Request.Context(), &service.TransactionRequest{
		PlayerID:      id,
		Type:          strings.ToUpper(strings.TrimSpace(req.Type)),
		Amount:        *req.Amount,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Provider:      strings.TrimSpace(req.Provider),
		CreatedBy:     strconv.FormatInt(id, 10),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "Transaction processed successfully", gin.H{
		"transactionId":   result.TransactionID,
		"transactionCode": result.TransactionCode,
		"balance":         amountValue(result.Balance),
	})
}

// ============================================================
// 流水相关接口
// ============================================================

// ListHistory 玩家流水，按时间倒序
// GET /history?playerId=xxx
func (h *Handler) ListHistory(c *gin.Context) {
	playerID, ok := parseID(c.Query("playerId"))
	if !ok {
		response.ParamError(c, "Player ID is required")
		return
	}
	if !h.authorizePlayer(c, playerID) {
		return
	}

	histories, err := h.historyService.ListHistory(c.Request.Context(), playerID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, histories)
}

// GetHistory 按流水号查询
// GET /history/:transactionCode
func (h *Handler) GetHistory(c *gin.Context) {
	entry, err := h.historyService.GetHistoryByCode(c.Request.Context(), c.Param("transactionCode"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !h.authorizePlayer(c, entry.PlayerID) {
		return
	}
	response.Success(c, entry)
}

// ============================================================
// 消息中心
// ============================================================

// ListMessages GET /api/messages/:playerId
func (h *Handler) ListMessages(c *gin.Context) {
	playerID, ok := parseID(c.Param("playerId"))
	if !ok {
		response.ParamError(c, "Player ID is required")
		return
	}
	if !h.authorizePlayer(c, playerID) {
		return
	}

	messages, err := h.messageService.ListMessages(c.Request.Context(), playerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		response.Success(c, []interface{}{})
		return
	}
	response.Success(c, messages)
}

// authorizeMessage 带 token 时只能修改发给自己的消息，广播消息不允许玩家修改
func (h *Handler) authorizeMessage(c *gin.Context, id int64) bool {
	if _, ok := c.Get(claimsKey); !ok {
		return true
	}

	msg, err := h.messageService.GetMessage(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return false
	}
	if msg.All || msg.PlayerID == nil {
		response.Forbidden(c, "Forbidden")
		return false
	}
	return h.authorizePlayer(c, *msg.PlayerID)
}

// MarkMessageRead PUT /api/messages/:id/read
func (h *Handler) MarkMessageRead(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		response.ParamError(c, "Message ID is required")
		return
	}
	if !h.authorizeMessage(c, id) {
		return
	}
	if err := h.messageService.MarkRead(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "Message marked as read", nil)
}

// DeleteMessage DELETE /api/messages/:id
func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		response.ParamError(c, "Message ID is required")
		return
	}
	if !h.authorizeMessage(c, id) {
		return
	}
	if err := h.messageService.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "Message deleted", nil)
}
