package handler

import (
    "context"
    "errors"
    "net/http"
    "net/mail"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/config"
    "github.com/iplance/iplance-core/internal/middleware"
    "github.com/iplance/iplance-core/internal/model"
    "github.com/iplance/iplance-core/internal/repository"
    "github.com/iplance/iplance-core/internal/service"
    "github.com/iplance/iplance-core/internal/utils"
)

const minPasswordLen = 8

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg    config.Config
    Users  *repository.UserRepo
    Auth   *service.AuthService
    Tokens *service.TokenService
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepo, auth *service.AuthService, tokens *service.TokenService) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: users, Auth: auth, Tokens: tokens}
}

// ----- DTOs -----

type registerReq struct {
    Username string `json:"username"`
    Email    string `json:"email"`
    Phone    string `json:"phone"`
    Password string `json:"password"`
    Role     string `json:"role"` // customer | performer
}

type loginReq struct {
    Username string `json:"username"`
    Email    string `json:"email"`
    Phone    string `json:"phone"`
    Password string `json:"password"`
}

type sessionResp struct {
    User        model.User `json:"user"`
    AccessToken string     `json:"access_token"`
    TokenType   string     `json:"token_type"`
    ExpiresAt   time.Time  `json:"expires_at"`
    CSRFToken   string     `json:"csrf_token"`
}

// Register creates a principal.  Duplicate username, email or phone is a 400
// naming the field.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Username = strings.TrimSpace(req.Username)
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    req.Phone = strings.TrimSpace(req.Phone)
    if req.Username == "" || req.Email == "" || req.Phone == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "username, email, phone and password are required"})
    }
    if _, err := mail.ParseAddress(req.Email); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
    }
    if len(req.Password) < minPasswordLen {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.Create(ctx, repository.NewUser{
        Username: req.Username,
        Email:    req.Email,
        Phone:    req.Phone,
        Password: req.Password,
        Role:     model.ParseRole(req.Role),
    }, h.Cfg.BcryptCost)
    if err != nil {
        switch {
        case errors.Is(err, repository.ErrUsernameExists):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "Username already registered"})
        case errors.Is(err, repository.ErrEmailExists):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email already registered"})
        case errors.Is(err, repository.ErrPhoneExists):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "Phone already registered"})
        case errors.Is(err, repository.ErrConflict):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "account already registered"})
        }
        c.Logger().Errorf("register %q: %v", req.Username, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
    }
    c.Logger().Infof("registered user %s (%s)", u.Username, u.ID)
    return c.JSON(http.StatusCreated, u)
}

// Login verifies credentials and sets the three session cookies.  Every
// credential failure gets the same 401 body.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    creds := service.Credentials{
        Username: req.Username,
        Email:    req.Email,
        Phone:    req.Phone,
        Password: req.Password,
    }
    if _, _, ok := creds.Identifier(); !ok || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password and exactly one of username, email or phone are required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, sess, err := h.Auth.Login(ctx, creds)
    if err != nil {
        if errors.Is(err, service.ErrInvalidCredentials) {
            c.Logger().Warnf("failed login attempt: %v", err)
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Incorrect username or password"})
        }
        c.Logger().Errorf("login: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
    }

    setCookie(c, h.Cfg, middleware.AccessCookie, sess.Access)
    setCookie(c, h.Cfg, middleware.RefreshCookie, sess.Refresh)
    setCookie(c, h.Cfg, middleware.CSRFCookie, sess.CSRF)
    return c.JSON(http.StatusOK, sessionResp{
        User:        u,
        AccessToken: sess.Access.Token,
        TokenType:   "bearer",
        ExpiresAt:   sess.Access.Exp,
        CSRFToken:   sess.CSRF.Token,
    })
}

// Me returns the authenticated principal (protected).
func (h *AuthHandler) Me(c echo.Context) error {
    u, ok := middleware.Principal(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    return c.JSON(http.StatusOK, u)
}

// Logout revokes both the access and the refresh token of the session and
// clears the cookies (protected).
func (h *AuthHandler) Logout(c echo.Context) error {
    access, refresh := middleware.RawTokens(c)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    for _, raw := range []string{access, refresh} {
        if err := h.Tokens.Revoke(ctx, raw); err != nil {
            if errors.Is(err, service.ErrStoreUnavailable) {
                c.Logger().Errorf("logout: %v", err)
                return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "logout failed"})
            }
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
        }
    }
    clearCookies(c, h.Cfg)
    return c.JSON(http.StatusOK, echo.Map{"message": "Successfully logged out"})
}

// Refresh mints a new access token and csrf token from the refresh cookie.
// The refresh token is not rotated; all three cookies are set again.
func (h *AuthHandler) Refresh(c echo.Context) error {
    refresh := middleware.CookieValue(c, middleware.RefreshCookie)
    if refresh == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing refresh token"})
    }
    csrf := middleware.CookieValue(c, middleware.CSRFCookie)
    if csrf == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing CSRF token"})
    }
    if !middleware.CSRFMatches(csrf, c.Request().Header.Get(middleware.CSRFHeader)) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid CSRF token"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    access, claims, err := h.Tokens.RefreshAccess(ctx, refresh)
    if err != nil {
        if errors.Is(err, service.ErrUnauthorized) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
        }
        c.Logger().Errorf("refresh: %v", err)
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "refresh failed"})
    }
    u, err := h.Users.GetByUsername(ctx, claims.Subject)
    if err != nil || !u.IsActive {
        if err != nil && !errors.Is(err, repository.ErrNotFound) {
            c.Logger().Errorf("refresh: load %q: %v", claims.Subject, err)
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
        }
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    newCSRF, err := h.Tokens.IssueCSRF()
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue csrf failed"})
    }

    setCookie(c, h.Cfg, middleware.AccessCookie, access)
    refreshExp := time.Now().Add(h.Tokens.RefreshTTL())
    if claims.ExpiresAt != nil {
        refreshExp = claims.ExpiresAt.Time
    }
    setCookie(c, h.Cfg, middleware.RefreshCookie, utils.IssuedToken{Token: refresh, Exp: refreshExp})
    setCookie(c, h.Cfg, middleware.CSRFCookie, newCSRF)
    return c.JSON(http.StatusOK, sessionResp{
        User:        u,
        AccessToken: access.Token,
        TokenType:   "bearer",
        ExpiresAt:   access.Exp,
        CSRFToken:   newCSRF.Token,
    })
}
