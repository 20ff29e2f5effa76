package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerCaptures(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	Logf("detector %s degraded", "facial")
	Logf("frame %d skipped", 7)

	if len(lines) != 2 {
		t.Fatalf("captured %d lines, want 2", len(lines))
	}
	if lines[0] != "detector facial degraded" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "frame 7 skipped" {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	SetLogger(nil)
	// Must not panic.
	Logf("dropped %v", "silently")
}
