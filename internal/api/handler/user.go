package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/internal/api/middleware"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/service"
)

type UserHandler struct {
	userService        *service.UserService
	entitlementService *service.EntitlementService
}

func NewUserHandler(userService *service.UserService, entitlementService *service.EntitlementService) *UserHandler {
	return &UserHandler{
		userService:        userService,
		entitlementService: entitlementService,
	}
}

// GetProfile handles GET /api/user/profile.
func (h *UserHandler) GetProfile(c *gin.Context) {
	info, err := h.userService.GetProfile(middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, "failed to load profile")
		return
	}
	response.Success(c, info)
}

// UpdateProfile handles PUT /api/user/profile.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.userService.UpdateProfile(middleware.GetUserID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNothingToUpdate):
			response.ParamError(c, "no profile fields to update")
		case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrEmailTaken):
			response.ConflictError(c, err.Error())
		case errors.Is(err, repository.ErrVersionConflict):
			response.ConflictError(c, "")
		default:
			response.ServerError(c, "failed to update profile")
		}
		return
	}
	response.Success(c, info)
}

// GetQuota handles GET /api/user/quota.
func (h *UserHandler) GetQuota(c *gin.Context) {
	info, err := h.entitlementService.GetQuotaInfo(middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, "failed to load quota")
		return
	}
	response.Success(c, info)
}
