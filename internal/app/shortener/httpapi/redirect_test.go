package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

type failingLookup struct{ err error }

func (f failingLookup) FindLink(context.Context, string, string) (*shortener.Link, error) {
	return nil, f.err
}

func TestRedirect_StoreFailureHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused password=hunter2")
	r := gee.New()
	RegisterPublicRoutes(r, shortener.NewResolver(failingLookup{err: cause}, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/promo", nil)
	req.Host = "short.ly"
	req.RemoteAddr = "192.0.2.10:40000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code < 500 {
		t.Fatalf("status = %d, want 5xx", w.Code)
	}
	body := w.Body.String()
	for _, leak := range []string{"hunter2", "10.0.0.5", "connection refused"} {
		if strings.Contains(body, leak) {
			t.Fatalf("body %q exposes %q", body, leak)
		}
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Fatalf("Location = %q on failure", loc)
	}
}

func TestRedirect_HeadUsesGetRoute(t *testing.T) {
	s := setupTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/links", map[string]any{
		"slug":           "preview",
		"destinationUrl": "https://example.com/preview",
		"domain":         "short.ly",
	}, nil)
	expectStatus(t, w, http.StatusCreated)

	w = s.do(t, http.MethodHead, "http://short.ly/preview", nil, noAuth)
	expectStatus(t, w, http.StatusMovedPermanently)
	if loc := w.Header().Get("Location"); loc != "https://example.com/preview" {
		t.Fatalf("Location = %q", loc)
	}
}
