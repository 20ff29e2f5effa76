package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/classlens-data/classlens/internal/db"
	"github.com/classlens-data/classlens/internal/security"
)

// SaveTimelinePNG plots each student's engagement score over frames and
// writes the result to <dir>/<lectureID>_timeline.png. It returns the path
// of the written file.
func SaveTimelinePNG(dir string, res *db.LectureResults) (string, error) {
	if res == nil || len(res.Students) == 0 {
		return "", fmt.Errorf("no student results to plot")
	}
	if err := security.ValidateExportPath(dir); err != nil {
		return "", fmt.Errorf("invalid report directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Student Engagement - %s", res.Lecture.LectureID)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Engagement"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true

	byStudent := studentSeries(res.Students)
	ids := sortedStudentIDs(byStudent)
	colors := timelineColors(len(ids))

	for i, id := range ids {
		rows := byStudent[id]
		pts := make(plotter.XYs, 0, len(rows))
		for _, r := range rows {
			pts = append(pts, plotter.XY{X: float64(r.FrameIndex), Y: r.EngagementScore})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("line for student %s: %w", id, err)
		}
		line.Width = vg.Points(1)
		line.Color = colors[i]
		p.Add(line)
		p.Legend.Add(legendLabel(id, byStudent[id]), line)
	}

	out := filepath.Join(dir, security.SanitizeFilename(res.Lecture.LectureID)+"_timeline.png")
	if err := p.Save(12*vg.Inch, 5*vg.Inch, out); err != nil {
		return "", fmt.Errorf("save timeline plot: %w", err)
	}
	return out, nil
}

// legendLabel prefers the student's seat number over the raw tracking ID.
func legendLabel(id string, rows []db.StudentRow) string {
	if len(rows) > 0 && rows[0].SeatNumber > 0 {
		return fmt.Sprintf("seat %d", rows[0].SeatNumber)
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// timelineColors creates a palette of distinct colors for student lines.
func timelineColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
