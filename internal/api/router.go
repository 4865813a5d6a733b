package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/api/handler"
	"github.com/phdwriter/essay_go_server/internal/api/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Essay     *handler.EssayHandler
	Journal   *handler.JournalHandler
	Billing   *handler.BillingHandler
	Plans     *handler.PlansHandler
	Webhook   *handler.WebhookHandler
	WebSocket *handler.WebSocketHandler
}

func NewRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.CORS(&cfg.CORS))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": cfg.Server.Mode})
	})

	api := r.Group("/api")

	// public
	api.GET("/plans", h.Plans.List)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/verify-email", h.Auth.VerifyEmail)
		auth.GET("/github", h.Auth.GithubLogin)
		auth.GET("/github/callback", h.Auth.GithubCallback)
	}

	// provider callbacks authenticate by signature, not by token
	webhooks := api.Group("/webhooks")
	{
		webhooks.POST("/stripe", h.Webhook.Stripe)
		webhooks.POST("/paypal", h.Webhook.PayPal)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(cfg.JWT.Secret))
	{
		user := authed.Group("/user")
		{
			user.GET("/profile", h.User.GetProfile)
			user.PUT("/profile", h.User.UpdateProfile)
			user.GET("/quota", h.User.GetQuota)
		}

		essays := authed.Group("/essays")
		{
			essays.POST("", h.Essay.Generate)
			essays.GET("", h.Essay.List)
			essays.GET("/:id", h.Essay.Get)
			essays.GET("/:id/download", h.Essay.Download)
		}

		authed.POST("/journals/search", h.Journal.Search)

		billing := authed.Group("/billing")
		{
			billing.POST("/quote", h.Billing.Quote)
			billing.POST("/charge", h.Billing.Charge)
			billing.POST("/cancel", h.Billing.Cancel)
		}

		authed.GET("/ws", h.WebSocket.Connect)
	}

	return r
}
