package handler

import (
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
)

type PlansHandler struct {
	cfg *config.Config
}

func NewPlansHandler(cfg *config.Config) *PlansHandler {
	return &PlansHandler{cfg: cfg}
}

type planView struct {
	Name         string  `json:"name"`
	EssayQuota   int     `json:"essay_quota"` // -1 means unlimited
	MonthlyPrice float64 `json:"monthly_price"`
	AnnualPrice  float64 `json:"annual_price"`
}

var planOrder = map[string]int{"free": 0, "essentials": 1, "pro": 2}

// List handles GET /api/plans. Public, no auth required.
func (h *PlansHandler) List(c *gin.Context) {
	plans := make([]planView, 0, len(h.cfg.Plans.Tiers))
	for name, tier := range h.cfg.Plans.Tiers {
		plans = append(plans, planView{
			Name:         name,
			EssayQuota:   tier.EssayQuota,
			MonthlyPrice: tier.MonthlyPrice,
			AnnualPrice:  tier.AnnualPrice,
		})
	}
	sort.Slice(plans, func(i, j int) bool {
		return planOrder[plans[i].Name] < planOrder[plans[j].Name]
	})
	response.Success(c, plans)
}
