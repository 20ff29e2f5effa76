// Package report renders engagement charts for stored lecture results. The
// HTML output uses go-echarts and is served by the API; the PNG output uses
// gonum/plot and is written to disk for offline review.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/classlens-data/classlens/internal/db"
)

// WriteLectureHTML renders the engagement dashboard for one lecture: a line
// chart of class-average engagement per frame and a stacked bar chart of the
// high/moderate/disengaged counts.
func WriteLectureHTML(w io.Writer, res *db.LectureResults) error {
	if res == nil || len(res.Frames) == 0 {
		return fmt.Errorf("no frame results to chart")
	}

	frames := make([]string, len(res.Frames))
	avg := make([]opts.LineData, len(res.Frames))
	high := make([]opts.BarData, len(res.Frames))
	moderate := make([]opts.BarData, len(res.Frames))
	low := make([]opts.BarData, len(res.Frames))
	for i, f := range res.Frames {
		frames[i] = strconv.Itoa(f.FrameIndex)
		avg[i] = opts.LineData{Value: f.AverageEngagement}
		high[i] = opts.BarData{Value: f.HighlyEngaged}
		moderate[i] = opts.BarData{Value: f.ModeratelyEngaged}
		low[i] = opts.BarData{Value: f.Disengaged}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Class Engagement", Width: "1100px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Class Engagement Over Time",
			Subtitle: fmt.Sprintf("lecture=%s frames=%d students=%d", res.Lecture.LectureID, res.Lecture.FrameCount, res.Lecture.StudentCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Engagement", Min: 0, Max: 1}),
	)
	line.SetXAxis(frames).AddSeries("class average", avg,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Engagement Bands Per Frame"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Students"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(frames).
		AddSeries("highly engaged", high).
		AddSeries("moderately engaged", moderate).
		AddSeries("disengaged", low)
	bar.SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "bands"}))

	page := components.NewPage()
	page.SetPageTitle("ClassLens Engagement Report")
	page.AddCharts(line, bar)
	return page.Render(w)
}

// studentSeries collects one student's (frame, score) points in frame order.
func studentSeries(rows []db.StudentRow) map[string][]db.StudentRow {
	byStudent := make(map[string][]db.StudentRow)
	for _, r := range rows {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}
	for id := range byStudent {
		s := byStudent[id]
		sort.Slice(s, func(a, b int) bool { return s[a].FrameIndex < s[b].FrameIndex })
		byStudent[id] = s
	}
	return byStudent
}

// sortedStudentIDs returns the student IDs of a series map in stable order.
func sortedStudentIDs(byStudent map[string][]db.StudentRow) []string {
	ids := make([]string, 0, len(byStudent))
	for id := range byStudent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
