package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/secretdrop/secretdrop/internal/audit"
	"github.com/secretdrop/secretdrop/internal/config"
)

type captureShipper struct {
	ch chan *audit.Entry
}

func newCaptureShipper(buf int) *captureShipper {
	return &captureShipper{ch: make(chan *audit.Entry, buf)}
}

func (s *captureShipper) Ship(_ context.Context, e *audit.Entry) error {
	s.ch <- e
	return nil
}

func (s *captureShipper) Close() error { return nil }

func (s *captureShipper) waitForEntry(t *testing.T, timeout time.Duration) *audit.Entry {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(timeout):
		t.Fatal("no audit entry was shipped")
		return nil
	}
}

func (s *captureShipper) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case e := <-s.ch:
		t.Fatalf("unexpected audit entry: %+v", e)
	case <-time.After(wait):
	}
}

func newAuditRouter(shipper audit.Shipper, cfg *config.AuditConfig) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	r.Use(AuditMiddleware(shipper, cfg))
	r.POST("/api/v1/secrets", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/api/v1/secrets", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/api/v1/secrets/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.POST("/v1/secrets/:id/view", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuditMiddleware_RecordsSecretCreation(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(shipper, &config.AuditConfig{Enabled: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/secrets", strings.NewReader("{}")))

	entry := shipper.waitForEntry(t, 2*time.Second)
	if entry.Action != "secret.created" {
		t.Errorf("action = %q, want secret.created", entry.Action)
	}
	if entry.UserID != "user-1" {
		t.Errorf("user_id = %q, want user-1", entry.UserID)
	}
	if entry.StatusCode != http.StatusCreated {
		t.Errorf("status_code = %d, want 201", entry.StatusCode)
	}
}

func TestAuditMiddleware_RecordsDisclosure(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(shipper, &config.AuditConfig{Enabled: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/secrets/secret-1/view", nil))

	entry := shipper.waitForEntry(t, 2*time.Second)
	if entry.Action != "secret.viewed" {
		t.Errorf("action = %q, want secret.viewed", entry.Action)
	}
	if entry.ResourceID != "secret-1" {
		t.Errorf("resource_id = %q, want secret-1", entry.ResourceID)
	}
}

func TestAuditMiddleware_SkipsReads(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(shipper, &config.AuditConfig{Enabled: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/secrets", nil))

	shipper.expectNone(t, 100*time.Millisecond)
}

func TestAuditMiddleware_FailedWritesGatedByConfig(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(shipper, &config.AuditConfig{Enabled: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/secrets/missing", nil))
	shipper.expectNone(t, 100*time.Millisecond)

	r = newAuditRouter(shipper, &config.AuditConfig{Enabled: true, LogFailedRequests: true})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/secrets/missing", nil))

	entry := shipper.waitForEntry(t, 2*time.Second)
	if entry.Action != "secret.deleted" {
		t.Errorf("action = %q, want secret.deleted", entry.Action)
	}
	if entry.StatusCode != http.StatusNotFound {
		t.Errorf("status_code = %d, want 404", entry.StatusCode)
	}
}

func TestAuditMiddleware_LoginAction(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(shipper, &config.AuditConfig{Enabled: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader("{}")))

	entry := shipper.waitForEntry(t, 2*time.Second)
	if entry.Action != "account.login" {
		t.Errorf("action = %q, want account.login", entry.Action)
	}
	if entry.Resource != "account" {
		t.Errorf("resource = %q, want account", entry.Resource)
	}
}
