package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// RedisPinger abstracts the redis ping so tests can swap it.
type RedisPinger func(ctx context.Context) error

// HealthHandler reports whether the database and redis answer.  Load
// balancers use it; a 503 takes the instance out of rotation.
type HealthHandler struct {
    DB    Pinger
    Redis RedisPinger
}

func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    checks := echo.Map{"database": "ok", "redis": "ok"}
    healthy := true
    if err := h.DB.PingContext(ctx); err != nil {
        c.Logger().Warnf("health: database: %v", err)
        checks["database"] = "unavailable"
        healthy = false
    }
    if h.Redis != nil {
        if err := h.Redis(ctx); err != nil {
            c.Logger().Warnf("health: redis: %v", err)
            checks["redis"] = "unavailable"
            healthy = false
        }
    }
    if !healthy {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "checks": checks})
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "ok", "checks": checks})
}
