package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/internal/api/middleware"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
	"github.com/phdwriter/essay_go_server/internal/service"
)

type BillingHandler struct {
	paymentService *service.PaymentService
}

func NewBillingHandler(paymentService *service.PaymentService) *BillingHandler {
	return &BillingHandler{paymentService: paymentService}
}

// Quote handles POST /api/billing/quote.
func (h *BillingHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	response.Success(c, h.paymentService.Quote(req.WordCount))
}

// Charge handles POST /api/billing/charge.
func (h *BillingHandler) Charge(c *gin.Context) {
	var req dto.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if req.Purpose == "subscription" && req.Tier == "" {
		response.ParamError(c, "tier is required for subscription charges")
		return
	}
	if req.Purpose == "essay" && req.WordCount == 0 {
		response.ParamError(c, "word_count is required for essay charges")
		return
	}

	resp, err := h.paymentService.Charge(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		h.writeChargeError(c, err)
		return
	}
	response.Success(c, resp)
}

// Cancel handles POST /api/billing/cancel.
func (h *BillingHandler) Cancel(c *gin.Context) {
	resp, err := h.paymentService.Cancel(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrNoSubscription) {
			response.ParamError(c, "no subscription to cancel")
			return
		}
		h.writeChargeError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *BillingHandler) writeChargeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownTier):
		response.ParamError(c, "unknown subscription tier")
	case errors.Is(err, service.ErrAlreadySubscribed):
		response.ConflictError(c, "account already has an active subscription")
	case payment.IsTimeout(err):
		response.ProviderTimeout(c, "")
	case payment.IsRejected(err):
		var pe *payment.ProviderError
		if errors.As(err, &pe) {
			response.ProviderError(c, pe.Message)
			return
		}
		response.ProviderError(c, "")
	default:
		var pe *payment.ProviderError
		if errors.As(err, &pe) {
			response.ProviderError(c, "")
			return
		}
		response.ServerError(c, "charge failed")
	}
}
