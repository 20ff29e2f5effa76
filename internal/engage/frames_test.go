package engage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFrameDir(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; the loader must return lexical order.
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"frame_0002.jpg", []byte{0x02}},
		{"frame_0001.jpg", []byte{0x01}},
		{"frame_0003.png", []byte{0x03}},
		{"labels.csv", []byte("ignored")},
	} {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "frame_0000.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	frames, err := ReadFrameDir(dir)
	if err != nil {
		t.Fatalf("ReadFrameDir: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	for i, want := range []byte{0x01, 0x02, 0x03} {
		if len(frames[i]) != 1 || frames[i][0] != want {
			t.Errorf("frame %d = %v, want [%#x]", i, frames[i], want)
		}
	}
}

func TestReadFrameDir_Errors(t *testing.T) {
	if _, err := ReadFrameDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
	if _, err := ReadFrameDir(t.TempDir()); err == nil {
		t.Error("expected error for a directory without frame images")
	}
}
