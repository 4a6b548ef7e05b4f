package middleware

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iplance/iplance-core/internal/model"
    "github.com/iplance/iplance-core/internal/repository"
    "github.com/iplance/iplance-core/internal/service"
)

type stubUsers map[string]model.User

func (s stubUsers) GetByUsername(_ context.Context, name string) (model.User, error) {
    if u, ok := s[strings.ToLower(name)]; ok {
        return u, nil
    }
    return model.User{}, repository.ErrNotFound
}

func (s stubUsers) GetByEmail(context.Context, string) (model.User, error) {
    return model.User{}, repository.ErrNotFound
}

func (s stubUsers) GetByPhone(context.Context, string) (model.User, error) {
    return model.User{}, repository.ErrNotFound
}

type sessionFixture struct {
    mr       *miniredis.Miniredis
    tokens   *service.TokenService
    resolver *service.PrincipalResolver
    alice    model.User
    reasons  []string
    e        *echo.Echo
}

func newSessionFixture(t *testing.T) *sessionFixture {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    tokens := service.NewTokenService(service.TokenConfig{
        Secret:     "middleware-test-secret",
        AccessTTL:  10 * time.Minute,
        RefreshTTL: time.Hour,
        CSRFTTL:    10 * time.Minute,
    }, repository.NewRevocationRepo(rdb, "revoked"))

    f := &sessionFixture{
        mr:     mr,
        tokens: tokens,
        alice:  model.User{ID: uuid.New(), Username: "alice", Role: model.RoleCustomer, IsActive: true},
    }
    users := stubUsers{
        "alice": f.alice,
        "admin": {ID: uuid.New(), Username: "admin", Role: model.RoleAdmin, IsActive: true},
        "gone":  {ID: uuid.New(), Username: "gone", Role: model.RoleCustomer, IsActive: false},
    }
    f.resolver = service.NewPrincipalResolver(tokens, users)

    f.e = echo.New()
    g := f.e.Group("", Session(f.resolver, func(r string) { f.reasons = append(f.reasons, r) }))
    g.GET("/me", func(c echo.Context) error {
        u, ok := Principal(c)
        if !ok {
            return c.NoContent(http.StatusInternalServerError)
        }
        access, refresh := RawTokens(c)
        return c.JSON(http.StatusOK, echo.Map{
            "username": u.Username,
            "user_id":  c.Get(CtxUserID),
            "tokens":   access != "" && refresh != "",
        })
    })
    g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
        RequireCapability(model.CapListUsers))
    return f
}

func (f *sessionFixture) session(t *testing.T, subject string) service.Session {
    t.Helper()
    sess, err := f.tokens.IssueSession(subject)
    if err != nil {
        t.Fatal(err)
    }
    return sess
}

type reqOpts struct {
    access, refresh, csrf, header string
}

func (f *sessionFixture) do(path string, o reqOpts) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodGet, path, nil)
    if o.access != "" {
        req.AddCookie(&http.Cookie{Name: AccessCookie, Value: o.access})
    }
    if o.refresh != "" {
        req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: o.refresh})
    }
    if o.csrf != "" {
        req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: o.csrf})
    }
    if o.header != "" {
        req.Header.Set(CSRFHeader, o.header)
    }
    rec := httptest.NewRecorder()
    f.e.ServeHTTP(rec, req)
    return rec
}

func full(s service.Session) reqOpts {
    return reqOpts{s.Access.Token, s.Refresh.Token, s.CSRF.Token, s.CSRF.Token}
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
    t.Helper()
    var body map[string]string
    if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
        t.Fatalf("decode %q: %v", rec.Body.String(), err)
    }
    return body["error"]
}

func TestSessionAccepts(t *testing.T) {
    f := newSessionFixture(t)
    sess := f.session(t, "alice")

    rec := f.do("/me", full(sess))
    if rec.Code != http.StatusOK {
        t.Fatalf("status %d: %s", rec.Code, rec.Body)
    }
    var body map[string]any
    _ = json.Unmarshal(rec.Body.Bytes(), &body)
    if body["username"] != "alice" || body["user_id"] != f.alice.ID.String() || body["tokens"] != true {
        t.Fatalf("body %v", body)
    }
}

func TestSessionRejections(t *testing.T) {
    f := newSessionFixture(t)
    sess := f.session(t, "alice")
    ghost := f.session(t, "ghost")
    gone := f.session(t, "gone")

    cases := []struct {
        name string
        opts reqOpts
        want string
    }{
        {"no access", reqOpts{"", sess.Refresh.Token, sess.CSRF.Token, sess.CSRF.Token}, "missing access token"},
        {"no refresh", reqOpts{sess.Access.Token, "", sess.CSRF.Token, sess.CSRF.Token}, "missing refresh token"},
        {"no csrf cookie", reqOpts{sess.Access.Token, sess.Refresh.Token, "", sess.CSRF.Token}, "missing CSRF token"},
        {"no csrf header", reqOpts{sess.Access.Token, sess.Refresh.Token, sess.CSRF.Token, ""}, "invalid CSRF token"},
        {"csrf mismatch", reqOpts{sess.Access.Token, sess.Refresh.Token, sess.CSRF.Token, "nope"}, "invalid CSRF token"},
        {"garbage access", reqOpts{"garbage", sess.Refresh.Token, sess.CSRF.Token, sess.CSRF.Token}, "invalid token"},
        {"refresh as access", reqOpts{sess.Refresh.Token, sess.Refresh.Token, sess.CSRF.Token, sess.CSRF.Token}, "invalid token"},
        {"unknown user", full(ghost), "could not validate credentials"},
        {"inactive user", full(gone), "could not validate credentials"},
    }
    for _, c := range cases {
        rec := f.do("/me", c.opts)
        if rec.Code != http.StatusUnauthorized {
            t.Errorf("%s: status %d", c.name, rec.Code)
            continue
        }
        if got := errorOf(t, rec); got != c.want {
            t.Errorf("%s: error %q, want %q", c.name, got, c.want)
        }
    }
    if len(f.reasons) != len(cases) {
        t.Fatalf("reasons recorded = %v", f.reasons)
    }
}

func TestSessionRejectsRevokedTokens(t *testing.T) {
    f := newSessionFixture(t)
    ctx := context.Background()

    a := f.session(t, "alice")
    if err := f.tokens.Revoke(ctx, a.Access.Token); err != nil {
        t.Fatal(err)
    }
    if rec := f.do("/me", full(a)); rec.Code != http.StatusUnauthorized || errorOf(t, rec) != "token has been revoked" {
        t.Fatalf("revoked access: %d %s", rec.Code, rec.Body)
    }

    // A live access token is still rejected once its refresh token is revoked.
    b := f.session(t, "alice")
    if err := f.tokens.Revoke(ctx, b.Refresh.Token); err != nil {
        t.Fatal(err)
    }
    if rec := f.do("/me", full(b)); rec.Code != http.StatusUnauthorized || errorOf(t, rec) != "token has been revoked" {
        t.Fatalf("revoked refresh: %d %s", rec.Code, rec.Body)
    }
}

func TestSessionStoreDownIsNotUnauthorized(t *testing.T) {
    f := newSessionFixture(t)
    sess := f.session(t, "alice")
    f.mr.Close()

    rec := f.do("/me", full(sess))
    if rec.Code != http.StatusServiceUnavailable {
        t.Fatalf("status %d", rec.Code)
    }
}

func TestRequireCapability(t *testing.T) {
    f := newSessionFixture(t)

    if rec := f.do("/admin", full(f.session(t, "alice"))); rec.Code != http.StatusForbidden {
        t.Fatalf("customer: status %d", rec.Code)
    }
    if rec := f.do("/admin", full(f.session(t, "admin"))); rec.Code != http.StatusNoContent {
        t.Fatalf("admin: status %d", rec.Code)
    }
}

func TestCookieValue(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/", nil)
    req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: " abc "})
    c := e.NewContext(req, httptest.NewRecorder())
    if got := CookieValue(c, CSRFCookie); got != "abc" {
        t.Fatalf("CookieValue = %q, want abc", got)
    }
    if got := CookieValue(c, AccessCookie); got != "" {
        t.Fatalf("missing cookie = %q, want empty", got)
    }
}

func TestCSRFMatches(t *testing.T) {
    if !CSRFMatches("abc", " abc ") {
        t.Fatal("equal values should match")
    }
    for _, c := range [][2]string{{"abc", "abd"}, {"abc", ""}, {"", ""}, {"abc", "abcd"}} {
        if CSRFMatches(c[0], c[1]) {
            t.Errorf("%q vs %q matched", c[0], c[1])
        }
    }
}
