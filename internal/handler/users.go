package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/model"
    "github.com/iplance/iplance-core/internal/repository"
)

// UsersHandler exposes the admin user listing.
type UsersHandler struct {
    Users *repository.UserRepo
}

// List returns a page of users with the total count.
func (h *UsersHandler) List(c echo.Context) error {
    skip, limit, ok := page(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid skip or limit"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    items, total, err := h.Users.List(ctx, skip, limit)
    if err != nil {
        c.Logger().Errorf("list users: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
    }
    if items == nil {
        items = []model.User{}
    }
    return c.JSON(http.StatusOK, echo.Map{"total": total, "items": items})
}
