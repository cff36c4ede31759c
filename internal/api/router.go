package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"ontap-backend/config"
	"ontap-backend/internal/mw"
	"ontap-backend/internal/pour"
	"ontap-backend/internal/tap"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, db *gorm.DB, recorder *pour.Recorder, taps *tap.Registry, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(db, recorder, taps, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/taps", caching, handler.ListTaps)
		api.GET("/taps/:id", handler.GetTap)
		api.POST("/taps", handler.CreateTap)
		api.POST("/taps/:id/attach", handler.AttachKeg)
		api.POST("/taps/:id/detach", handler.DetachKeg)

		api.GET("/kegs", caching, handler.ListKegs)
		api.GET("/kegs/:id", handler.GetKeg)
		api.POST("/kegs", handler.CreateKeg)
		api.POST("/kegs/:id/end", handler.EndKeg)

		api.GET("/pours", handler.ListPours)
		api.GET("/pours/:id", handler.GetPour)
		api.POST("/pours", handler.CreatePour)
		api.POST("/pours/:id/cancel", handler.CancelPour)
		api.POST("/pours/:id/reassign", handler.ReassignPour)
		api.POST("/pours/:id/volume", handler.SetPourVolume)

		api.GET("/sessions", caching, handler.ListSessions)
		api.GET("/sessions/:id", handler.GetSession)

		api.GET("/events", handler.ListEvents)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
