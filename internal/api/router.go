// Package api exposes the deal service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pauljones0/dealboard/internal/auth"
	"github.com/pauljones0/dealboard/internal/media"
	"github.com/pauljones0/dealboard/internal/middleware"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/payment"
	"github.com/pauljones0/dealboard/internal/processor"
)

// AdminStore is the slice of storage the admin endpoints read and delete through.
type AdminStore interface {
	GetDeal(ctx context.Context, id string) (models.Deal, error)
	ListDeals(ctx context.Context, filter models.FeedFilter) ([]models.Deal, error)
	DeleteDeal(ctx context.Context, id string) error
}

// Payments gates user submissions.
type Payments interface {
	Enabled() bool
	KeyID() string
	CreateOrder(ctx context.Context, receipt string) (payment.Order, error)
	Claim(ctx context.Context, p payment.Proof, userID string) error
	Release(ctx context.Context, p payment.Proof) error
}

// Deps wires the router. Uploader and Payments may be nil when the
// corresponding feature is not configured.
type Deps struct {
	Auth        *auth.Service
	Deals       *processor.DealProcessor
	Store       AdminStore
	Uploader    media.Uploader
	Payments    Payments
	CORSOrigins []string
}

type Handler struct {
	auth     *auth.Service
	deals    *processor.DealProcessor
	store    AdminStore
	uploader media.Uploader
	payments Payments
}

func NewRouter(d Deps) *gin.Engine {
	h := &Handler{
		auth:     d.Auth,
		deals:    d.Deals,
		store:    d.Store,
		uploader: d.Uploader,
		payments: d.Payments,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	if len(d.CORSOrigins) > 0 {
		corsCfg := cors.Config{
			AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}
		if len(d.CORSOrigins) == 1 && d.CORSOrigins[0] == "*" {
			corsCfg.AllowAllOrigins = true
		} else {
			corsCfg.AllowOrigins = d.CORSOrigins
			corsCfg.AllowCredentials = true
		}
		r.Use(cors.New(corsCfg))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := middleware.AuthMiddleware(d.Auth.Tokens())

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/verify", h.VerifyEmail)
		authGroup.POST("/resend-verification", requireAuth, h.ResendVerification)
		authGroup.GET("/me", requireAuth, h.Me)
	}

	public := r.Group("/api/deals")
	{
		public.GET("", h.Feed)
		public.GET("/:id", h.GetDeal)
		public.POST("/submit", requireAuth, h.SubmitDeal)
	}

	r.POST("/api/uploads/image", requireAuth, h.UploadImage)
	r.POST("/api/payments/orders", requireAuth, h.CreateOrder)

	admin := r.Group("/api/admin")
	admin.Use(requireAuth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/deals", h.AdminListDeals)
		admin.GET("/deals/:id", h.AdminGetDeal)
		admin.POST("/deals", h.AdminCreateDeal)
		admin.PATCH("/deals/:id", h.AdminUpdateDeal)
		admin.DELETE("/deals/:id", h.AdminDeleteDeal)
		admin.POST("/deals/:id/approve", h.AdminApproveDeal)

		admin.POST("/import/json", h.ImportJSON)
		admin.POST("/import/csv", h.ImportCSV)
		admin.POST("/import/urls", h.ImportURLs)
		admin.POST("/import/crawl", h.Crawl)
	}

	return r
}
