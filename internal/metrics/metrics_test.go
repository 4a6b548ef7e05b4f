package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/chats/:id/messages", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/"+id+"/messages", nil))
	}

	out := scrape(t, m)
	want := `http_requests_total{method="GET",path="/chats/:id/messages",status="204"} 3`
	if !strings.Contains(out, want) {
		t.Fatalf("missing %q in:\n%s", want, out)
	}
}

func TestMiddlewareRecordsHandlerErrors(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/boom", func(c echo.Context) error { return echo.ErrForbidden })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	if out := scrape(t, m); !strings.Contains(out, `path="/boom",status="403"`) {
		t.Fatalf("403 not recorded:\n%s", out)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.AuthRejected("revoked")
	m.AuthRejected("revoked")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.MessageStored()
	m.OfflineNotified(nil)
	m.OfflineNotified(errors.New("broker down"))

	out := scrape(t, m)
	for _, want := range []string{
		`auth_rejections_total{reason="revoked"} 2`,
		`chat_ws_connections 1`,
		`chat_messages_total 1`,
		`chat_offline_notifications_total{result="ok"} 1`,
		`chat_offline_notifications_total{result="error"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}
