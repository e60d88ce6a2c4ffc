package api

import (
	"stash/internal/server/config"
	"stash/internal/server/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware. The caller owns the rate limiter's lifecycle.
func SetupRouter(handler *Handler, tokens *service.TokenService, uploadLimiter *RateLimiter, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Owner-Id"},
	}))
	e.Use(RequestLogger())

	// Health
	e.GET("/health", handler.HandleHealth)

	// Public surfaces: artifact download, short-link redirect, delete-key flows
	e.GET("/u/:file", handler.HandleServeUpload)
	e.GET("/l/:code", handler.HandleRedirect)
	e.GET("/api/delete", handler.HandleDeleteByKey)
	e.GET("/api/links/delete", handler.HandleDeleteLinkByKey)
	e.POST("/api/config", handler.HandleUploaderConfig)

	// Upload accepts API tokens so third-party tools can post directly
	e.POST("/api/upload", handler.HandleUpload, uploadLimiter.Middleware(), TokenAuth(tokens))

	// Everything else requires the owner identity
	owned := e.Group("", OwnerIdentity())

	owned.GET("/api/uploads", handler.HandleListUploads)
	owned.PUT("/api/uploads/:file", handler.HandleEditUpload)
	owned.DELETE("/api/uploads/:file", handler.HandleDeleteUpload)
	owned.DELETE("/api/uploads", handler.HandleDeleteAllUploads)

	owned.POST("/api/links", handler.HandleCreateLink)
	owned.GET("/api/links", handler.HandleListLinks)
	owned.PUT("/api/links/:code", handler.HandleEditLink)
	owned.DELETE("/api/links/:code", handler.HandleDeleteLink)

	owned.PUT("/api/account", handler.HandleEnsureAccount)
	owned.PUT("/api/account/settings", handler.HandleAccountSettings)
	owned.GET("/api/account/space", handler.HandleSpaceUsed)
	owned.GET("/api/account/export", handler.HandleExport)
	owned.DELETE("/api/account", handler.HandleDeleteAccount)

	owned.POST("/api/tokens", handler.HandleIssueToken)
	owned.GET("/api/tokens", handler.HandleListTokens)
	owned.DELETE("/api/tokens/:id", handler.HandleRevokeToken)

	return e
}
