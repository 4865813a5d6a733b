package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes.
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeUpgradeRequired  = 1004
	CodeConflict         = 1005
	CodeProviderError    = 2000
	CodeProviderTimeout  = 2001
	CodeServerError      = 5000
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid request",
	CodeAuthFailed:       "authentication failed",
	CodePermissionDenied: "permission denied",
	CodeResourceNotFound: "resource not found",
	CodeUpgradeRequired:  "essay limit reached, upgrade required",
	CodeConflict:         "conflicting update, please retry",
	CodeProviderError:    "payment provider error",
	CodeProviderTimeout:  "payment provider timed out",
	CodeServerError:      "internal server error",
}

// Response is the unified API envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData wraps paginated results.
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data: PageData{
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			Items:    items,
		},
	})
}

func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// UpgradeRequired is the structured denial for metered actions. It is a
// normal decision outcome, not a failure, so the envelope carries the
// upgrade options for the UI to present.
func UpgradeRequired(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeUpgradeRequired,
		Message: codeMessages[CodeUpgradeRequired],
		Data:    data,
	})
}

func ConflictError(c *gin.Context, message string) {
	Error(c, CodeConflict, message)
}

func ProviderError(c *gin.Context, message string) {
	Error(c, CodeProviderError, message)
}

func ProviderTimeout(c *gin.Context, message string) {
	Error(c, CodeProviderTimeout, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
