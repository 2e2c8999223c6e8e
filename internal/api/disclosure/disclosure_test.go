package disclosure

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/secretdrop/secretdrop/internal/auth"
	"github.com/secretdrop/secretdrop/internal/db/repositories"
	"github.com/secretdrop/secretdrop/internal/secrets"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	lifecycle := secrets.NewLifecycle(
		repositories.NewSecretRepository(sqlx.NewDb(db, "sqlmock")),
		secrets.BcryptGuard{},
		secrets.Options{},
	)
	h := NewHandlers(lifecycle)

	r := gin.New()
	r.GET("/v1/secrets/:id", h.GetMeta)
	r.POST("/v1/secrets/:id/view", h.View)
	return r, mock
}

var secretCols = []string{
	"id", "owner_id", "content", "password_hash", "one_time_access",
	"expires_at", "is_viewed", "viewed_at", "created_at", "updated_at",
}

func secretRow(passwordHash *string, oneTime bool, expiresAt *time.Time, viewed bool) *sqlmock.Rows {
	var viewedAt *time.Time
	if viewed {
		now := time.Now()
		viewedAt = &now
	}
	return sqlmock.NewRows(secretCols).
		AddRow("secret-1", "user-1", "the payload", passwordHash, oneTime,
			expiresAt, viewed, viewedAt, time.Now(), time.Now())
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// GetMeta
// ---------------------------------------------------------------------------

func TestGetMeta_Found(t *testing.T) {
	r, mock := newRouter(t)
	hash := "$2a$12$hash"
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(&hash, true, nil, false))

	w := do(r, http.MethodGet, "/v1/secrets/secret-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["has_password"] != true {
		t.Error("has_password should be true")
	}
	if body["one_time_access"] != true {
		t.Error("one_time_access should be true")
	}
	if body["status"] != "active" {
		t.Errorf("status = %v, want active", body["status"])
	}
	if _, leaked := body["content"]; leaked {
		t.Error("metadata response must not contain content")
	}
}

func TestGetMeta_NotFound(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(secretCols))

	w := do(r, http.MethodGet, "/v1/secrets/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetMeta_Expired(t *testing.T) {
	r, mock := newRouter(t)
	past := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(nil, false, &past, false))

	w := do(r, http.MethodGet, "/v1/secrets/secret-1", "")
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410 for expired secret", w.Code)
	}
}

func TestGetMeta_AlreadyConsumed(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(nil, true, nil, true))

	w := do(r, http.MethodGet, "/v1/secrets/secret-1", "")
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410 for consumed secret", w.Code)
	}
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func TestView_Plain(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(nil, false, nil, false))
	mock.ExpectExec("UPDATE secrets.*SET is_viewed = true").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["content"] != "the payload" {
		t.Errorf("content = %v, want the payload", body["content"])
	}
	if body["consumed"] != false {
		t.Errorf("consumed = %v, want false for a reusable secret", body["consumed"])
	}
}

func TestView_NotFound(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(secretCols))

	w := do(r, http.MethodPost, "/v1/secrets/missing/view", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestView_Expired(t *testing.T) {
	r, mock := newRouter(t)
	past := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(nil, false, &past, false))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", "")
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
}

func TestView_AlreadyConsumed(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(nil, true, nil, true))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", "")
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
}

func TestView_PasswordRequired(t *testing.T) {
	r, mock := newRouter(t)
	hash := "$2a$12$hash"
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(&hash, false, nil, false))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestView_InvalidPassword(t *testing.T) {
	r, mock := newRouter(t)
	hash, err := auth.HashPassword("correct")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(&hash, false, nil, false))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", `{"password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestView_CorrectPassword(t *testing.T) {
	r, mock := newRouter(t)
	hash, err := auth.HashPassword("correct")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(&hash, false, nil, false))
	mock.ExpectExec("UPDATE secrets.*SET is_viewed = true").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", `{"password":"correct"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestView_OneTimeLostRace(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery("SELECT.*FROM secrets.*WHERE id").
		WithArgs("secret-1").
		WillReturnRows(secretRow(nil, true, nil, false))
	// Another viewer flipped is_viewed between the read and the update
	mock.ExpectExec("UPDATE secrets.*SET is_viewed = true").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", "")
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410 when losing the one-time race", w.Code)
	}
}

func TestView_MalformedBody(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodPost, "/v1/secrets/secret-1/view", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
