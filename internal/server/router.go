package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"push-device-service/internal/auth"
	"push-device-service/internal/handler"
	"push-device-service/internal/hub"
	"push-device-service/internal/middleware"
	"push-device-service/internal/model"
	"push-device-service/internal/service"
	"push-device-service/internal/userstore"
)

type Deps struct {
	Service     *service.PushDeviceService
	Hub         *hub.Hub
	Users       userstore.Store
	TokenConfig auth.TokenConfig
	// BasePath prefixes every /me route.
	BasePath       string
	TenantDomain   string
	MobileLimiter  *middleware.RateLimiter
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty means the peer address is the client.
	TrustedProxies []string
	Version        string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		zap.L().Warn("ignoring trusted proxies", zap.Strings("proxies", deps.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())

	health := &handler.HealthHandler{Version: deps.Version}
	r.GET("/health", health.Check)

	limiter := deps.MobileLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(30, time.Minute)
	}
	mobile := middleware.RateLimitMiddleware(limiter, middleware.RouteClientKey)
	session := middleware.RequireAuth(deps.TokenConfig, deps.TenantDomain)

	base := r.Group(deps.BasePath)
	for _, kind := range []model.DeviceKind{model.KindPush, model.KindBiometric} {
		devices := &handler.DevicesHandler{Service: deps.Service, Kind: kind}
		events := &handler.EventsHandler{Hub: deps.Hub, Users: deps.Users, Kind: kind}

		g := base.Group("/me/" + string(kind) + "-auth")
		g.POST("/devices", mobile, devices.Register)
		g.POST("/devices/remove", mobile, devices.RemoveByToken)
		g.POST("/devices/:deviceId/remove", mobile, devices.RemoveMobile)

		protected := g.Group("", session)
		protected.GET("/devices", devices.List)
		protected.GET("/devices/:deviceId", devices.Get)
		protected.PATCH("/devices/:deviceId", devices.Edit)
		protected.DELETE("/devices/:deviceId", devices.Delete)
		protected.GET("/discovery-data", devices.DiscoveryData)
		protected.GET("/events", events.Serve)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "PDM-10404", "message": "Resource not found."})
	})
	return r
}
