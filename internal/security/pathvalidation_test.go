package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	safe := t.TempDir()

	if err := ValidatePathWithinDirectory(filepath.Join(safe, "report.png"), safe); err != nil {
		t.Errorf("path inside safe dir rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(safe, "a", "b", "c.csv"), safe); err != nil {
		t.Errorf("nested path rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(safe, "..", "escape.txt"), safe); err == nil {
		t.Error("parent escape accepted")
	}
	if err := ValidatePathWithinDirectory("/etc/passwd", safe); err == nil {
		t.Error("absolute outside path accepted")
	}
}

func TestValidatePathWithinDirectory_Symlink(t *testing.T) {
	safe := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(safe, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	if err := ValidatePathWithinDirectory(filepath.Join(link, "file.txt"), safe); err == nil {
		t.Error("symlink escape accepted")
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "x.csv"), []string{a, b}); err != nil {
		t.Errorf("path in second allowed dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs("/nowhere/x.csv", []string{a, b}); err == nil {
		t.Error("path outside all dirs accepted")
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(a, "x"), nil); err == nil {
		t.Error("empty allow list accepted")
	}
}

func TestValidateExportPath(t *testing.T) {
	if err := ValidateExportPath(filepath.Join(t.TempDir(), "out")); err != nil {
		t.Errorf("temp dir path rejected: %v", err)
	}
	if err := ValidateExportPath("/etc/cron.d/evil"); err == nil {
		t.Error("system path accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"lec-2025-09-01", "lec-2025-09-01"},
		{"Monday Lecture #3", "Monday_Lecture_3"},
		{"../../etc/passwd", "etc_passwd"},
		{"a///b", "a_b"},
		{"", "unknown"},
		{"///", "unknown"},
		{"...", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("a", 500)
	if got := SanitizeFilename(long); len(got) != 128 {
		t.Errorf("long input length = %d, want 128", len(got))
	}
}
