package handler

import (
	"net/http"

	"playerwallet/internal/model"
	"playerwallet/internal/service"
	"playerwallet/pkg/response"

	"github.com/gin-gonic/gin"
)

func userView(p *model.Player) gin.H {
	return gin.H{
		"id":         p.ID,
		"name":       p.FullName(),
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"email":      p.Email,
	}
}

func authBody(res *service.AuthResult) gin.H {
	return gin.H{
		"ok":        true,
		"user":      userView(res.Player),
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login 邮箱密码登录
// POST /login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Login(c.Request.Context(), &service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, authBody(res))
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Birthdate string `json:"birthdate"`
	Password  string `json:"password"`
}

// Register 注册并创建钱包
// POST /register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Register(c.Request.Context(), &service.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Birthdate: req.Birthdate,
		Password:  req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"ok":       true,
		"message":  "Registration successful.",
		"playerId": res.Player.ID,
		"token":    res.Token,
	})
}

type GoogleLoginRequest struct {
	IDToken string `json:"idToken"`
}

// GoogleLogin 使用 Google ID Token 登录，首次登录自动注册
// POST /auth/google
func (h *Handler) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.GoogleLogin(c.Request.Context(), req.IDToken)
	if err != nil {
		writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, authBody(res))
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword POST /forgot-password
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.authService.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"ok":      true,
		"message": "Password reset token generated.",
	}
	// 没有邮件通道时才把令牌放进响应
	if h.cfg.Auth.ExposeResetToken {
		body["token"] = token
	}
	response.JSON(c, http.StatusOK, body)
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword POST /reset-password
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.authService.ResetPassword(c.Request.Context(), &service.ResetPasswordRequest{
		Email:       req.Email,
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "Password has been reset successfully.", nil)
}
