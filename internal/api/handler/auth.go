package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
	"github.com/phdwriter/essay_go_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
			response.ConflictError(c, err.Error())
		default:
			response.ServerError(c, "registration failed")
		}
		return
	}
	response.SuccessWithMessage(c, "registered, please verify your email", resp)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.AuthError(c, "invalid email or password")
		case errors.Is(err, service.ErrEmailNotVerified):
			response.AuthError(c, "email not verified")
		default:
			response.ServerError(c, "login failed")
		}
		return
	}
	response.Success(c, resp)
}

// VerifyEmail handles POST /api/auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.authService.VerifyEmail(req.Code); err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			response.ParamError(c, "verification code invalid or expired")
		} else {
			response.ServerError(c, "verification failed")
		}
		return
	}
	response.SuccessWithMessage(c, "email verified", nil)
}

// GithubLogin handles GET /api/auth/github: redirects to GitHub.
func (h *AuthHandler) GithubLogin(c *gin.Context) {
	state := uuid.NewString()
	// state is echoed back by github; SPA compares it against its copy
	c.SetCookie("oauth_state", state, 600, "/", "", false, true)
	c.Redirect(302, h.authService.GithubAuthURL(state))
}

// GithubCallback handles GET /api/auth/github/callback.
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "missing authorization code")
		return
	}

	if cookie, err := c.Cookie("oauth_state"); err != nil || cookie != c.Query("state") {
		response.AuthError(c, "oauth state mismatch")
		return
	}

	resp, err := h.authService.GithubLogin(c.Request.Context(), code)
	if err != nil {
		response.AuthError(c, "github login failed")
		return
	}
	response.Success(c, resp)
}
