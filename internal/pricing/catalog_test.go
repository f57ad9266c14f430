package pricing

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	content := `services:
  - name: telegram
    popular: true
  - name: whatsapp
    popular: true
    timeout: 5m
  - name: unlovedapp
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	if !catalog.IsPopular("telegram") {
		t.Error("Expected telegram to be popular")
	}
	if catalog.IsPopular("unlovedapp") {
		t.Error("Expected unlovedapp to be general")
	}
	if catalog.IsPopular("unknown") {
		t.Error("Expected unlisted service to be general")
	}
	if got := catalog.VerificationTimeout("whatsapp"); got != 5*time.Minute {
		t.Errorf("Expected 5m timeout, got %v", got)
	}
	if got := catalog.VerificationTimeout("unlovedapp"); got != 120*time.Second {
		t.Errorf("Expected default timeout, got %v", got)
	}
}

func TestLoadCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadCatalog(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(dir, "noname.yaml")
	if err := os.WriteFile(path, []byte("services:\n  - popular: true\n"), 0o644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Error("Expected error for service without name")
	}

	path = filepath.Join(dir, "badtimeout.yaml")
	if err := os.WriteFile(path, []byte("services:\n  - name: x\n    timeout: soon\n"), 0o644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Error("Expected error for unparseable timeout")
	}
}
