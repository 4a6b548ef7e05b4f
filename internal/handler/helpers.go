package handler

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

const (
    defaultPageLimit = 50
    maxPageLimit     = 100
)

// page reads skip/limit query parameters.  ok is false when either is
// malformed or negative.
func page(c echo.Context) (skip, limit int, ok bool) {
    skip, limit = 0, defaultPageLimit
    if s := c.QueryParam("skip"); s != "" {
        n, err := strconv.Atoi(s)
        if err != nil || n < 0 {
            return 0, 0, false
        }
        skip = n
    }
    if s := c.QueryParam("limit"); s != "" {
        n, err := strconv.Atoi(s)
        if err != nil || n < 1 {
            return 0, 0, false
        }
        limit = n
    }
    if limit > maxPageLimit {
        limit = maxPageLimit
    }
    return skip, limit, true
}

func pathID(c echo.Context, name string) (int64, bool) {
    id, err := strconv.ParseInt(c.Param(name), 10, 64)
    if err != nil || id <= 0 {
        return 0, false
    }
    return id, true
}
