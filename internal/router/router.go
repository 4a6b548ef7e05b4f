package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iplance/iplance-core/internal/handler"
	"github.com/iplance/iplance-core/internal/middleware"
	"github.com/iplance/iplance-core/internal/model"
)

// RegisterRoutes registers routes that do not require authentication: the
// health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, health *handler.HealthHandler, metrics http.Handler) {
	e.GET("/healthz", health.Health)
	e.GET("/metrics", echo.WrapHandler(metrics))
}

// RegisterAuth registers the /auth endpoints.  Register, login and refresh
// run behind the rate limiter only; me and logout also need a session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, session, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// refresh authenticates from the refresh cookie itself
	g.POST("/refresh", a.Refresh)

	g.GET("/me", a.Me, session)
	g.POST("/logout", a.Logout, session)
}

// RegisterChat registers conversation endpoints and the chat websocket.
// The websocket authenticates from its token query parameter and is not
// part of the session group.
func RegisterChat(e *echo.Echo, h *handler.ChatHandler, session echo.MiddlewareFunc) {
	g := e.Group("/chats", session, middleware.RequireCapability(model.CapChat))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id/messages", h.History)

	e.GET("/ws/chat/:chat_id", h.Socket)
}

// RegisterUsers registers the admin user listing.
func RegisterUsers(e *echo.Echo, h *handler.UsersHandler, session echo.MiddlewareFunc) {
	e.GET("/users", h.List, session, middleware.RequireCapability(model.CapListUsers))
}
