package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
	"github.com/phdwriter/essay_go_server/internal/service"
)

type JournalHandler struct {
	journalService *service.JournalService
}

func NewJournalHandler(journalService *service.JournalService) *JournalHandler {
	return &JournalHandler{journalService: journalService}
}

// Search handles POST /api/journals/search. Gated behind login but not
// metered: searching does not consume essay quota.
func (h *JournalHandler) Search(c *gin.Context) {
	var req dto.JournalSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	articles, total, err := h.journalService.Search(&req)
	if err != nil {
		response.ServerError(c, "journal search failed")
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	response.SuccessPage(c, total, page, pageSize, articles)
}
