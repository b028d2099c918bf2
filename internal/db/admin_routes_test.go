package db

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestAttachAdminRoutesMounts(t *testing.T) {
	database := setupTestDB(t)

	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	// The debug index responds for local callers.
	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /debug/, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "backup") {
		t.Error("debug index should list the backup endpoint")
	}
}

func TestAdminRoutesDenyNonLocalCallers(t *testing.T) {
	database := setupTestDB(t)

	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	// httptest's default RemoteAddr is a TEST-NET address, which the
	// debugger treats as remote and rejects.
	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-local caller, got %d", w.Code)
	}
}

func TestBackupEndpoint(t *testing.T) {
	database := setupTestDB(t)
	base := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	for i := 0; i < 3; i++ {
		createTestScan(t, database, "evt-1", "wb-"+strconv.Itoa(i), "general",
			40.7580, -73.9855, base.Add(time.Duration(i)*time.Second))
	}

	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	beforeFiles, err := filepath.Glob(filepath.Join(os.TempDir(), "gatewise-backup-*.db"))
	if err != nil {
		t.Fatalf("Failed to list temp files: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from backup endpoint, got %d: %s", w.Code, w.Body.String())
	}
	if enc := w.Header().Get("Content-Encoding"); enc != "gzip" {
		t.Errorf("expected gzip encoding, got %q", enc)
	}

	// The body is a gzipped SQLite file.
	gz, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open gzip reader: %v", err)
	}
	magic := make([]byte, 16)
	if _, err := io.ReadFull(gz, magic); err != nil {
		t.Fatalf("Failed to read backup header: %v", err)
	}
	if !bytes.HasPrefix(magic, []byte("SQLite format 3")) {
		t.Errorf("backup does not look like a SQLite database: %q", magic)
	}

	// The temp file is removed after streaming.
	afterFiles, err := filepath.Glob(filepath.Join(os.TempDir(), "gatewise-backup-*.db"))
	if err != nil {
		t.Fatalf("Failed to list temp files after backup: %v", err)
	}
	if len(afterFiles) > len(beforeFiles) {
		t.Errorf("backup temp file not cleaned up: before=%d, after=%d", len(beforeFiles), len(afterFiles))
	}
}
