package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/model"
)

// Capable is anything that can answer whether it holds a capability.
// model.User implements it through its role.
type Capable interface {
    Can(model.Capability) bool
}

// RequireCapability aborts with 403 unless the principal stored by Session
// holds capability want.  It must run after Session.
func RequireCapability(want model.Capability) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            p, ok := c.Get(CtxPrincipal).(Capable)
            if !ok || !p.Can(want) {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
