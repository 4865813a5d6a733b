package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/internal/api/middleware"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
	"github.com/phdwriter/essay_go_server/internal/service"
)

type EssayHandler struct {
	essayService   *service.EssayService
	paymentService *service.PaymentService
}

func NewEssayHandler(essayService *service.EssayService, paymentService *service.PaymentService) *EssayHandler {
	return &EssayHandler{
		essayService:   essayService,
		paymentService: paymentService,
	}
}

// Generate handles POST /api/essays. A metered denial is a decision, not a
// failure: the envelope carries the per-essay price so the UI can offer
// the one-time purchase alongside the upgrade.
func (h *EssayHandler) Generate(c *gin.Context) {
	var req dto.GenerateEssayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	detail, err := h.essayService.Generate(middleware.GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrEssayLimitReached) {
			response.UpgradeRequired(c, gin.H{
				"per_essay_price": service.PerEssayPrice(req.WordCount),
				"word_count":      req.WordCount,
			})
			return
		}
		response.ServerError(c, "essay generation failed")
		return
	}
	response.Success(c, detail)
}

// List handles GET /api/essays.
func (h *EssayHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	essays, total, err := h.essayService.List(middleware.GetUserID(c), page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to list essays")
		return
	}
	response.SuccessPage(c, total, page, pageSize, essays)
}

// Get handles GET /api/essays/:id.
func (h *EssayHandler) Get(c *gin.Context) {
	essayID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid essay id")
		return
	}

	detail, err := h.essayService.Get(middleware.GetUserID(c), essayID)
	if err != nil {
		if errors.Is(err, service.ErrEssayNotFound) {
			response.NotFoundError(c, "essay not found")
		} else {
			response.ServerError(c, "failed to load essay")
		}
		return
	}
	response.Success(c, detail)
}

// Download handles GET /api/essays/:id/download.
func (h *EssayHandler) Download(c *gin.Context) {
	essayID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid essay id")
		return
	}

	filename, content, err := h.essayService.Download(middleware.GetUserID(c), essayID)
	if err != nil {
		if errors.Is(err, service.ErrEssayNotFound) {
			response.NotFoundError(c, "essay not found")
		} else {
			response.ServerError(c, "failed to download essay")
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(200, "text/plain; charset=utf-8", content)
}
