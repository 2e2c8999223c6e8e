package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testEntry(action string) *Entry {
	return &Entry{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		UserID:     "user-1",
		Resource:   "secret",
		ResourceID: "secret-1",
		IPAddress:  "203.0.113.9",
		StatusCode: 201,
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}

	if err := fs.Ship(context.Background(), testEntry("secret.created")); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if err := fs.Ship(context.Background(), testEntry("secret.deleted")); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var actions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		actions = append(actions, entry.Action)
	}
	if len(actions) != 2 || actions[0] != "secret.created" || actions[1] != "secret.deleted" {
		t.Errorf("actions = %v, want [secret.created secret.deleted]", actions)
	}
}

func TestFileShipper_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(&FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	// Inflate the file past the rotation threshold, then ship once more
	if err := os.WriteFile(path, make([]byte, 2*1024*1024), 0600); err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if err := fs.Ship(context.Background(), testEntry("secret.created")); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated backup missing: %v", err)
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_Direct(t *testing.T) {
	received := make(chan Entry, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var entry Entry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- entry
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(&WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), testEntry("secret.viewed")); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	select {
	case entry := <-received:
		if entry.Action != "secret.viewed" {
			t.Errorf("action = %q, want secret.viewed", entry.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never received the entry")
	}
}

func TestWebhookShipper_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(&WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), testEntry("secret.viewed")); err == nil {
		t.Error("Ship should fail on a 5xx response")
	}
}

func TestWebhookShipper_Batched(t *testing.T) {
	received := make(chan []Entry, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Entry
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		received <- batch
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := NewWebhookShipper(&WebhookConfig{
		URL:           srv.URL,
		BatchSize:     2,
		FlushInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), testEntry("secret.created")); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if err := ws.Ship(context.Background(), testEntry("secret.updated")); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	select {
	case batch := <-received:
		if len(batch) != 2 {
			t.Errorf("batch size = %d, want 2", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch was never flushed")
	}
}

// ---------------------------------------------------------------------------
// MultiShipper
// ---------------------------------------------------------------------------

type recordingShipper struct {
	entries []*Entry
	err     error
	closed  bool
}

func (s *recordingShipper) Ship(_ context.Context, e *Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingShipper) Close() error {
	s.closed = true
	return nil
}

func TestMultiShipper_FansOut(t *testing.T) {
	a := &recordingShipper{}
	b := &recordingShipper{}
	ms := NewMultiShipper(a, b)

	if err := ms.Ship(context.Background(), testEntry("account.login")); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if len(a.entries) != 1 || len(b.entries) != 1 {
		t.Errorf("entries = %d/%d, want 1/1", len(a.entries), len(b.entries))
	}
}

func TestMultiShipper_OneFailureDoesNotBlockOthers(t *testing.T) {
	failing := &recordingShipper{err: errors.New("destination down")}
	healthy := &recordingShipper{}
	ms := NewMultiShipper(failing, healthy)

	if err := ms.Ship(context.Background(), testEntry("account.login")); err == nil {
		t.Error("Ship should surface the failure")
	}
	if len(healthy.entries) != 1 {
		t.Errorf("healthy shipper entries = %d, want 1", len(healthy.entries))
	}
}

func TestMultiShipper_Close(t *testing.T) {
	a := &recordingShipper{}
	b := &recordingShipper{}
	ms := NewMultiShipper(a, b)

	if err := ms.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("all shippers should be closed")
	}
}
