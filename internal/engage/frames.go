package engage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ReadFrameDir loads every frame image (.jpg, .jpeg or .png) in dir in
// lexical order. Lecture recordings are exported as numbered frame files,
// so lexical order matches capture order.
func ReadFrameDir(dir string) ([]Region, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no frame images in %s", dir)
	}
	sort.Strings(names)

	frames := make([]Region, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", name, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}
