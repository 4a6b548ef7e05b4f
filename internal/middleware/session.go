package middleware

import (
    "crypto/subtle"
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/service"
)

// Cookie and header names of the session contract.
const (
    AccessCookie  = "access_token"
    RefreshCookie = "refresh_token"
    CSRFCookie    = "csrf_token"
    CSRFHeader    = "X-CSRF-TOKEN"
)

// Context keys set by Session.
const (
    CtxPrincipal    = "principal"
    CtxUserID       = "user_id"
    CtxAccessToken  = "access_token"
    CtxRefreshToken = "refresh_token"
)

// RejectFunc observes session rejections; reason is a short metric label.
type RejectFunc func(reason string)

// Session authenticates a request from its session cookies.  It requires
// the access, refresh and csrf cookies, a csrf header equal to the cookie,
// neither token revoked, a valid access token, and an active principal
// named by it.  On success the principal and both raw tokens are stored in
// the context.  Rejections are 401 with a specific message; a revocation
// store outage is a 503.
func Session(resolver *service.PrincipalResolver, onReject RejectFunc) echo.MiddlewareFunc {
    if onReject == nil {
        onReject = func(string) {}
    }
    deny := func(c echo.Context, reason, msg string) error {
        onReject(reason)
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            access := CookieValue(c, AccessCookie)
            if access == "" {
                return deny(c, "missing_access", "missing access token")
            }
            refresh := CookieValue(c, RefreshCookie)
            if refresh == "" {
                return deny(c, "missing_refresh", "missing refresh token")
            }
            csrf := CookieValue(c, CSRFCookie)
            if csrf == "" {
                return deny(c, "missing_csrf", "missing CSRF token")
            }
            if !CSRFMatches(csrf, c.Request().Header.Get(CSRFHeader)) {
                return deny(c, "csrf_mismatch", "invalid CSRF token")
            }

            ctx := c.Request().Context()
            revoked, err := resolver.Tokens.IsRevoked(ctx, refresh)
            if err != nil {
                c.Logger().Errorf("session: revocation check: %v", err)
                return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
            }
            if revoked {
                return deny(c, "revoked", service.ErrTokenRevoked.Error())
            }

            user, _, err := resolver.Resolve(ctx, access)
            if err != nil {
                if !errors.Is(err, service.ErrUnauthorized) {
                    c.Logger().Errorf("session: resolve principal: %v", err)
                    return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
                }
                return deny(c, RejectReason(err), err.Error())
            }

            c.Set(CtxPrincipal, user)
            c.Set(CtxUserID, user.ID.String())
            c.Set(CtxAccessToken, access)
            c.Set(CtxRefreshToken, refresh)
            return next(c)
        }
    }
}

// CSRFMatches compares the csrf cookie and header in constant time.
func CSRFMatches(cookie, header string) bool {
    header = strings.TrimSpace(header)
    if cookie == "" || header == "" {
        return false
    }
    return subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) == 1
}

// RejectReason maps a token service error to a metric label.
func RejectReason(err error) string {
    switch {
    case errors.Is(err, service.ErrTokenMissing):
        return "missing_access"
    case errors.Is(err, service.ErrTokenRevoked):
        return "revoked"
    case errors.Is(err, service.ErrTokenExpired):
        return "expired"
    case errors.Is(err, service.ErrUnknownPrincipal):
        return "unknown_principal"
    default:
        return "invalid"
    }
}

// CookieValue returns the trimmed value of cookie name, or "" when absent.
func CookieValue(c echo.Context, name string) string {
    ck, err := c.Cookie(name)
    if err != nil {
        return ""
    }
    return strings.TrimSpace(ck.Value)
}
