package audit_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/model-registry/model-registry/internal/audit"
	"github.com/model-registry/model-registry/internal/config"
)

func int64Ptr(v int64) *int64 { return &v }

func enabled(shippers ...config.AuditShipperConfig) config.AuditConfig {
	return config.AuditConfig{Enabled: true, Shippers: shippers}
}

// ---------------------------------------------------------------------------
// MultiShipper - via NewMultiShipper factory
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Disabled(t *testing.T) {
	ms, err := audit.NewMultiShipper(config.AuditConfig{
		Shippers: []config.AuditShipperConfig{{Enabled: true, Type: "bogus"}},
	})
	if err != nil {
		t.Fatalf("NewMultiShipper() error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0 when audit is disabled", ms.Len())
	}
	if err := ms.Ship(context.Background(), &audit.LogEntry{Action: "download"}); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_DisabledShipperSkipped(t *testing.T) {
	ms, err := audit.NewMultiShipper(enabled(config.AuditShipperConfig{
		Enabled: false, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: "http://example.com"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
}

func TestNewMultiShipper_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		sc   config.AuditShipperConfig
	}{
		{"unknown type", config.AuditShipperConfig{Enabled: true, Type: "syslog"}},
		{"webhook nil config", config.AuditShipperConfig{Enabled: true, Type: "webhook"}},
		{"file nil config", config.AuditShipperConfig{Enabled: true, Type: "file"}},
		{"webhook without url", config.AuditShipperConfig{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audit.NewMultiShipper(enabled(tt.sc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestMultiShipper_ContinuesAfterShipperError(t *testing.T) {
	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv1.Close()

	var srv2Count atomic.Int32
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv2Count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv2.Close()

	ms, err := audit.NewMultiShipper(enabled(
		config.AuditShipperConfig{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: srv1.URL, TimeoutSecs: 1}},
		config.AuditShipperConfig{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: srv2.URL, TimeoutSecs: 1}},
	))
	if err != nil {
		t.Fatalf("NewMultiShipper error: %v", err)
	}
	defer ms.Close()

	if err := ms.Ship(context.Background(), &audit.LogEntry{Action: "download"}); err == nil {
		t.Error("Ship() = nil, want error from first shipper")
	}
	if got := srv2Count.Load(); got != 1 {
		t.Errorf("second shipper received %d calls, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipEntry(t *testing.T) {
	var received bytes.Buffer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		_, _ = received.ReadFrom(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL, TimeoutSecs: 5})
	if err != nil {
		t.Fatalf("NewWebhookShipper error: %v", err)
	}
	defer ws.Close()

	entry := &audit.LogEntry{
		Action:    "download",
		Status:    "ok",
		UserID:    int64Ptr(7),
		RepoID:    "org/model",
		RFilename: "config.json",
	}
	if err := ws.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	var decoded audit.LogEntry
	if err := json.Unmarshal(received.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.Action != "download" || decoded.RepoID != "org/model" || decoded.Status != "ok" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.UserID == nil || *decoded.UserID != 7 {
		t.Errorf("UserID = %v, want 7", decoded.UserID)
	}
}

func TestWebhookShipper_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL})
	defer ws.Close()

	if err := ws.Ship(context.Background(), &audit.LogEntry{Action: "event"}); err == nil {
		t.Error("Ship() = nil, want error for 502 response")
	}
}

func TestWebhookShipper_CustomHeader(t *testing.T) {
	var gotToken atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("X-Auth-Token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Auth-Token": "secret"},
	})
	defer ws.Close()

	_ = ws.Ship(context.Background(), &audit.LogEntry{Action: "manifest"})
	if got, _ := gotToken.Load().(string); got != "secret" {
		t.Errorf("X-Auth-Token = %q, want secret", got)
	}
}

func TestWebhookShipper_CloseTwice(t *testing.T) {
	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: "http://localhost:0", BatchSize: 10})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	_ = ws.Close()
}

func TestWebhookShipper_BatchFlushOnInterval(t *testing.T) {
	done := make(chan []audit.LogEntry, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []audit.LogEntry
		_ = json.NewDecoder(r.Body).Decode(&batch)
		w.WriteHeader(http.StatusOK)
		done <- batch
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:           srv.URL,
		BatchSize:     100,
		FlushInterval: 1,
	})
	defer ws.Close()

	_ = ws.Ship(context.Background(), &audit.LogEntry{Action: "files_list"})

	select {
	case batch := <-done:
		if len(batch) != 1 || batch[0].Action != "files_list" {
			t.Errorf("batch = %+v", batch)
		}
	case <-time.After(5 * time.Second):
		t.Error("timed out waiting for interval flush")
	}
}

func TestWebhookShipper_BatchFlushOnClose(t *testing.T) {
	done := make(chan int, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []audit.LogEntry
		_ = json.NewDecoder(r.Body).Decode(&batch)
		w.WriteHeader(http.StatusOK)
		done <- len(batch)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:           srv.URL,
		BatchSize:     100,
		FlushInterval: 60,
	})

	for i := 0; i < 3; i++ {
		_ = ws.Ship(context.Background(), &audit.LogEntry{Action: "download"})
	}
	_ = ws.Close()

	select {
	case n := <-done:
		if n != 3 {
			t.Errorf("flushed %d entries on close, want 3", n)
		}
	case <-time.After(3 * time.Second):
		t.Error("timed out waiting for close-triggered flush")
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_ShipEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := fs.Ship(context.Background(), &audit.LogEntry{Action: "download", Size: int64Ptr(int64(i))}); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}
	if err := fs.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	count := 0
	for scanner.Scan() {
		var decoded audit.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line %d: %v", count, err)
		}
		if decoded.Size == nil || *decoded.Size != int64(count) {
			t.Errorf("line %d size = %v", count, decoded.Size)
		}
		count++
	}
	if count != 5 {
		t.Errorf("file has %d lines, want 5", count)
	}
}

func TestNewFileShipper_InvalidPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodir", "audit.log")
	if _, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path}); err == nil {
		t.Error("expected error for path with nonexistent parent, got nil")
	}
}

func TestFileShipper_Rotate(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")

	data := make([]byte, 1*1024*1024+1)
	if err := os.WriteFile(logPath, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: logPath, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	if err := fs.Ship(context.Background(), &audit.LogEntry{Action: "after-rotate"}); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("log file missing after rotation: %v", err)
	}
	if info.Size() > 1024 {
		t.Errorf("live file size = %d, want a fresh file", info.Size())
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("backup .1 missing after rotation: %v", err)
	}
}
