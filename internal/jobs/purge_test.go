package jobs

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/secretdrop/secretdrop/internal/config"
	"github.com/secretdrop/secretdrop/internal/db/repositories"
)

func newPurger(t *testing.T, cfg *config.RetentionConfig) (*SecretPurger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := repositories.NewSecretRepository(sqlx.NewDb(db, "sqlmock"))
	return NewSecretPurger(repo, cfg), mock
}

func TestSecretPurger_RunPurge(t *testing.T) {
	p, mock := newPurger(t, &config.RetentionConfig{
		Enabled:      true,
		ExpiredAfter: 24 * time.Hour,
		ViewedAfter:  24 * time.Hour,
	})

	mock.ExpectExec("DELETE FROM secrets.*expires_at.*one_time_access").
		WillReturnResult(sqlmock.NewResult(0, 3))

	p.runPurge(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSecretPurger_DisabledIsNoOp(t *testing.T) {
	p, mock := newPurger(t, &config.RetentionConfig{Enabled: false})

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start should return immediately when retention is disabled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("disabled purger touched the database: %v", err)
	}
}

func TestSecretPurger_StopEndsLoop(t *testing.T) {
	p, mock := newPurger(t, &config.RetentionConfig{
		Enabled:       true,
		PurgeInterval: time.Hour,
	})

	// The initial purge on startup
	mock.ExpectExec("DELETE FROM secrets").
		WillReturnResult(sqlmock.NewResult(0, 0))

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestSecretPurger_ContextCancelEndsLoop(t *testing.T) {
	p, mock := newPurger(t, &config.RetentionConfig{
		Enabled:       true,
		PurgeInterval: time.Hour,
	})

	mock.ExpectExec("DELETE FROM secrets").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
