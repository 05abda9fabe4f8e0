// Package httpapi is the transport layer of the shortener: request/response
// DTOs, error mapping and route registration on gee. Domain logic lives in
// the shortener package.
package httpapi

import (
	"time"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
	"github.com/emanueledeamicis/OpenShort/internal/platform/httpmiddleware"
	"github.com/emanueledeamicis/OpenShort/internal/platform/ratelimit"
)

// Deps is what the API handlers run against. A nil Limiter disables rate
// limiting.
type Deps struct {
	Links             *shortener.Registry
	Domains           *shortener.DomainAuthority
	Visits            shortener.VisitStore
	Accounts          *account.Service
	Tokens            auth.TokenService
	Limiter           ratelimit.Allower
	AllowRegistration bool
}

// RegisterAPIRoutes mounts the management API under api (e.g. /api).
func RegisterAPIRoutes(api *gee.RouterGroup, d Deps) {
	authn := httpmiddleware.AuthRequired(d.Tokens, d.Accounts)
	adminOnly := httpmiddleware.RequireRole(auth.RoleAdmin)

	// 登录 5次/分钟，注册 3次/分钟
	api.POST("/auth/login", httpmiddleware.RateLimit(d.Limiter, "login", 5, time.Minute), NewLoginHandler(d.Accounts))
	api.POST("/auth/register", httpmiddleware.RateLimit(d.Limiter, "register", 3, time.Minute), NewRegisterHandler(d.Accounts, d.AllowRegistration))

	me := api.Group("/me")
	me.Use(authn)
	me.GET("", NewMeHandler())

	links := api.Group("/links")
	links.Use(authn)
	links.GET("", NewListLinksHandler(d.Links))
	links.POST("", NewCreateLinkHandler(d.Links))
	links.GET("/:id", NewGetLinkHandler(d.Links))
	links.PUT("/:id", NewUpdateLinkHandler(d.Links))
	links.DELETE("/:id", NewDeleteLinkHandler(d.Links))
	links.GET("/:id/stats", NewLinkStatsHandler(d.Links, d.Visits))

	domains := api.Group("/domains")
	domains.Use(authn)
	domains.GET("", NewListDomainsHandler(d.Domains))
	domains.GET("/:id", NewGetDomainHandler(d.Domains))
	domains.GET("/:id/links/count", NewCountDomainLinksHandler(d.Domains))
	domains.POST("", adminOnly, NewCreateDomainHandler(d.Domains))
	domains.PUT("/:id", adminOnly, NewUpdateDomainHandler(d.Domains))
	domains.DELETE("/:id", adminOnly, NewDeleteDomainHandler(d.Domains))

	// 需要管理员的路由
	users := api.Group("/users")
	users.Use(authn, adminOnly)
	users.GET("", NewListUsersHandler(d.Accounts))
	users.POST("", NewCreateUserHandler(d.Accounts))
	users.DELETE("/:id", NewDeleteUserHandler(d.Accounts))

	security := api.Group("/security")
	security.Use(authn)
	security.GET("/apikey", adminOnly, NewAPIKeyInfoHandler(d.Accounts))
	security.POST("/apikey", adminOnly, NewGenerateAPIKeyHandler(d.Accounts))
	security.POST("/change-password", NewChangePasswordHandler(d.Accounts))
}

// RegisterPublicRoutes mounts the redirect entry point on the root router.
// Short links are served from the bare path so they work on any seeded host.
func RegisterPublicRoutes(engine *gee.Engine, res *shortener.Resolver, limiter ratelimit.Allower) {
	// 跳转 100次/分钟
	engine.GET("/:slug", httpmiddleware.RateLimit(limiter, "redirect", 100, time.Minute), NewRedirectHandler(res))
}
