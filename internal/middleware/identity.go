package middleware

// identity.go defines helpers shared across middleware and handlers for
// reading what Session stored in the Echo context.

import (
    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/model"
)

// Principal returns the authenticated user stored by Session.
func Principal(c echo.Context) (model.User, bool) {
    u, ok := c.Get(CtxPrincipal).(model.User)
    return u, ok
}

// RawTokens returns the access and refresh tokens the request authenticated
// with.
func RawTokens(c echo.Context) (access, refresh string) {
    access, _ = c.Get(CtxAccessToken).(string)
    refresh, _ = c.Get(CtxRefreshToken).(string)
    return access, refresh
}

// userID returns the authenticated principal id, or "anon" when the request
// did not pass through Session.
func userID(c echo.Context) string {
    if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
        return s
    }
    return "anon"
}
