package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/config"
    "github.com/iplance/iplance-core/internal/middleware"
    "github.com/iplance/iplance-core/internal/utils"
)

// setCookie writes one session cookie.  The csrf cookie stays readable by
// scripts so the client can echo it back in the X-CSRF-TOKEN header.
func setCookie(c echo.Context, cfg config.Config, name string, tok utils.IssuedToken) {
    c.SetCookie(&http.Cookie{
        Name:     name,
        Value:    tok.Token,
        Path:     "/",
        Domain:   cfg.CookieDomain,
        Expires:  tok.Exp,
        MaxAge:   int(time.Until(tok.Exp).Seconds()),
        Secure:   cfg.CookieSecure,
        HttpOnly: name != middleware.CSRFCookie,
        SameSite: http.SameSiteLaxMode,
    })
}

func clearCookies(c echo.Context, cfg config.Config) {
    for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie, middleware.CSRFCookie} {
        c.SetCookie(&http.Cookie{
            Name:     name,
            Value:    "",
            Path:     "/",
            Domain:   cfg.CookieDomain,
            Expires:  time.Unix(0, 0),
            MaxAge:   -1,
            Secure:   cfg.CookieSecure,
            HttpOnly: name != middleware.CSRFCookie,
            SameSite: http.SameSiteLaxMode,
        })
    }
}
