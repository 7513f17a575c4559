package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/api/handlers"
	"keyhub/internal/api/middleware"
	"keyhub/internal/platform/auth"
)

type Dependencies struct {
	VerifyHandler      *handlers.VerifyHandler
	KeyHandler         *handlers.KeyHandler
	SelfServiceHandler *handlers.SelfServiceHandler
	BlacklistHandler   *handlers.BlacklistHandler
	AuthHandler        *handlers.AuthHandler
	HealthHandler      *handlers.HealthHandler
	StatsHandler       *handlers.StatsHandler
	MetricsHandler     *handlers.MetricsHandler
	AuditHandler       *handlers.AuditHandler
	WebhookHandler     *handlers.WebhookHandler
	ScriptHandler      *handlers.ScriptHandler
	AuthMiddleware     *middleware.AuthMiddleware
	SelfService        *middleware.SelfServiceMiddleware
	VerifyLimiter      *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Public
	router.GET("/api/health", wrap(deps.HealthHandler.Check))
	router.GET("/api/stats", wrap(deps.StatsHandler.Get))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))
	router.POST("/webhook", wrap(deps.WebhookHandler.Receive))
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))

	// Loader endpoints
	limiter := deps.VerifyLimiter
	router.GET("/verify", chain(deps.VerifyHandler.Get, limiter.Handle))
	router.POST("/api/v1/verify", chain(deps.VerifyHandler.Post, limiter.Handle))
	router.POST("/api/verify-key", chain(deps.VerifyHandler.Post, limiter.Handle))
	router.GET("/status/:key", chain(deps.VerifyHandler.Status, limiter.Handle))
	router.GET("/script/:id", chain(deps.ScriptHandler.Fetch, limiter.Handle))
	router.POST("/execute/:id", chain(deps.ScriptHandler.Execute, limiter.Handle))

	authMid := deps.AuthMiddleware
	admin := requireRole(auth.RoleAdmin)

	// Key administration
	router.POST("/api/v1/keys", chain(deps.KeyHandler.Create, authMid.Handle, admin))
	router.GET("/api/v1/keys", chain(deps.KeyHandler.List, authMid.Handle, admin))
	router.GET("/api/v1/keys/:key", chain(deps.KeyHandler.Get, authMid.Handle, admin))
	router.DELETE("/api/v1/keys/:key", chain(deps.KeyHandler.Delete, authMid.Handle, admin))
	router.POST("/api/v1/keys/:key/reset", chain(deps.KeyHandler.Reset, authMid.Handle, admin))
	router.POST("/api/v1/users/:user_id/reset", chain(deps.KeyHandler.ResetOwner, authMid.Handle, admin))
	router.POST("/reset", chain(deps.KeyHandler.ResetByBody, authMid.Handle, admin))

	// Script catalogue
	router.POST("/api/v1/scripts", chain(deps.ScriptHandler.Upload, authMid.Handle, admin))
	router.GET("/api/v1/scripts", chain(deps.ScriptHandler.List, authMid.Handle, admin))

	// Blacklist
	router.GET("/api/v1/blacklist", chain(deps.BlacklistHandler.List, authMid.Handle, admin))
	router.PUT("/api/v1/blacklist/:user_id", chain(deps.BlacklistHandler.Put, authMid.Handle, admin))
	router.DELETE("/api/v1/blacklist/:user_id", chain(deps.BlacklistHandler.Delete, authMid.Handle, admin))

	router.GET("/api/v1/audit", chain(deps.AuditHandler.List, authMid.Handle, admin))

	// Self-service, called by the bot on behalf of a chat user
	bot := requireRole(auth.RoleBot, auth.RoleAdmin)
	self := deps.SelfService.Handle
	router.GET("/api/v1/self/:user_id/key", chain(deps.SelfServiceHandler.Key, authMid.Handle, bot, self))
	router.POST("/api/v1/self/:user_id/reset", chain(deps.SelfServiceHandler.Reset, authMid.Handle, bot, self))
	router.GET("/api/v1/self/:user_id/cooldown", chain(deps.SelfServiceHandler.Cooldown, authMid.Handle, bot, self))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return middleware.RequireRole(roles...)
}
