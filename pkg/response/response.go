package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一返回结构 {ok, message, data}
type Response struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		OK:   true,
		Data: data,
	})
}

// SuccessWithMessage 带提示信息的成功返回
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		OK:      true,
		Message: message,
		Data:    data,
	})
}

// JSON 直接输出自定义 body，用于登录等需要顶层字段的接口
func JSON(c *gin.Context, status int, body gin.H) {
	c.JSON(status, body)
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		OK:      false,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
