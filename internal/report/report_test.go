package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/classlens-data/classlens/internal/db"
)

func sampleResults() *db.LectureResults {
	score := func(v float64) *float64 { return &v }
	return &db.LectureResults{
		Lecture: db.Lecture{
			LectureID:    "lec-report",
			Source:       "monday.mp4",
			FrameCount:   3,
			StudentCount: 2,
		},
		Frames: []db.FrameRow{
			{LectureID: "lec-report", FrameIndex: 1, AverageEngagement: 0.5, HighlyEngaged: 1, Disengaged: 1, TotalStudents: 2},
			{LectureID: "lec-report", FrameIndex: 2, AverageEngagement: 0.6, HighlyEngaged: 1, ModeratelyEngaged: 1, TotalStudents: 2},
			{LectureID: "lec-report", FrameIndex: 3, AverageEngagement: 0.7, HighlyEngaged: 2, TotalStudents: 2},
		},
		Students: []db.StudentRow{
			{LectureID: "lec-report", FrameIndex: 2, StudentID: "stu-a", SeatNumber: 3, EngagementScore: 0.8, Engagement: score(2.4)},
			{LectureID: "lec-report", FrameIndex: 1, StudentID: "stu-a", SeatNumber: 3, EngagementScore: 0.7},
			{LectureID: "lec-report", FrameIndex: 1, StudentID: "stu-b", EngagementScore: 0.3},
		},
	}
}

func TestWriteLectureHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLectureHTML(&buf, sampleResults()); err != nil {
		t.Fatalf("WriteLectureHTML() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"Class Engagement Over Time",
		"Engagement Bands Per Frame",
		"highly engaged",
		"lecture=lec-report",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestWriteLectureHTML_NoFrames(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLectureHTML(&buf, &db.LectureResults{}); err == nil {
		t.Fatal("expected error for empty results")
	}
	if err := WriteLectureHTML(&buf, nil); err == nil {
		t.Fatal("expected error for nil results")
	}
}

func TestStudentSeries(t *testing.T) {
	byStudent := studentSeries(sampleResults().Students)
	if len(byStudent) != 2 {
		t.Fatalf("students = %d, want 2", len(byStudent))
	}

	a := byStudent["stu-a"]
	if len(a) != 2 {
		t.Fatalf("stu-a rows = %d, want 2", len(a))
	}
	if a[0].FrameIndex != 1 || a[1].FrameIndex != 2 {
		t.Errorf("stu-a frames = %d,%d, want 1,2", a[0].FrameIndex, a[1].FrameIndex)
	}

	ids := sortedStudentIDs(byStudent)
	if ids[0] != "stu-a" || ids[1] != "stu-b" {
		t.Errorf("ids = %v, want [stu-a stu-b]", ids)
	}
}

func TestSaveTimelinePNG(t *testing.T) {
	dir := t.TempDir()
	out, err := SaveTimelinePNG(dir, sampleResults())
	if err != nil {
		t.Fatalf("SaveTimelinePNG() error = %v", err)
	}
	if want := filepath.Join(dir, "lec-report_timeline.png"); out != want {
		t.Errorf("output path = %s, want %s", out, want)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("empty PNG written")
	}
}

func TestSaveTimelinePNG_NoStudents(t *testing.T) {
	if _, err := SaveTimelinePNG(t.TempDir(), &db.LectureResults{}); err == nil {
		t.Fatal("expected error for empty results")
	}
}

func TestLegendLabel(t *testing.T) {
	tests := []struct {
		id   string
		rows []db.StudentRow
		want string
	}{
		{"abc", []db.StudentRow{{SeatNumber: 12}}, "seat 12"},
		{"abc", []db.StudentRow{{SeatNumber: 0}}, "abc"},
		{"0123456789abcdef", nil, "01234567"},
	}
	for _, tt := range tests {
		if got := legendLabel(tt.id, tt.rows); got != tt.want {
			t.Errorf("legendLabel(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestTimelineColors(t *testing.T) {
	colors := timelineColors(5)
	if len(colors) != 5 {
		t.Fatalf("colors = %d, want 5", len(colors))
	}
	seen := make(map[interface{}]bool)
	for _, c := range colors {
		if seen[c] {
			t.Fatalf("duplicate color %v in palette", c)
		}
		seen[c] = true
	}
	if timelineColors(0) != nil {
		t.Error("expected nil palette for n=0")
	}
}
