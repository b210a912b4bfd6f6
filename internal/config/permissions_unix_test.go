//go:build unix

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  host: localhost\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	warning := checkFilePermissions(path)
	if !strings.Contains(warning, "chmod 600") {
		t.Errorf("0644 config produced no warning: %q", warning)
	}
	if !strings.Contains(warning, "database password") {
		t.Errorf("warning does not name what is exposed: %q", warning)
	}

	if err := os.Chmod(path, 0600); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if warning := checkFilePermissions(path); warning != "" {
		t.Errorf("0600 config produced warning: %q", warning)
	}

	if warning := checkFilePermissions(filepath.Join(t.TempDir(), "missing.yaml")); warning != "" {
		t.Errorf("missing file produced warning: %q", warning)
	}
}
