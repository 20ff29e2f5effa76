package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/classlens-data/classlens/internal/db"
	"github.com/classlens-data/classlens/internal/engage"
	"github.com/classlens-data/classlens/internal/httputil"
	"github.com/classlens-data/classlens/internal/report"
	"github.com/classlens-data/classlens/internal/version"
)

// maxProcessBody caps the replay request body. Regions arrive base64-encoded
// inside JSON, so lecture uploads can get large.
const maxProcessBody = 256 << 20

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"trained":    s.classifier != nil && s.classifier.IsTrained(),
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}

func (s *Server) listLectures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	lectures, err := s.db.ListLectures()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list lectures: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"lectures": lectures})
}

// replayDetection is one pre-tracked student detection in a replay request.
// Region carries the student's JPEG crop, base64-encoded by the JSON layer.
type replayDetection struct {
	ID         string  `json:"id"`
	Region     []byte  `json:"region"`
	Confidence float64 `json:"confidence"`
	CenterX    float64 `json:"center_x"`
	CenterY    float64 `json:"center_y"`

	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// processVideoRequest replays a lecture as pre-tracked per-frame detections.
type processVideoRequest struct {
	LectureID string              `json:"lecture_id"`
	Source    string              `json:"source"`
	Frames    [][]replayDetection `json:"frames"`
}

type processVideoResponse struct {
	LectureID string                `json:"lecture_id"`
	Frames    []*engage.FrameResult `json:"frames"`
}

func (s *Server) processVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}
	if int64(len(body)) > s.maxBody {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", s.maxBody))
		return
	}
	var req processVideoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("parse request: %v", err))
		return
	}
	if len(req.Frames) == 0 {
		httputil.BadRequest(w, "no frames in request")
		return
	}
	if req.LectureID == "" {
		req.LectureID = uuid.New().String()
	}

	frames := make([][]engage.StudentDetection, len(req.Frames))
	for i, fr := range req.Frames {
		dets := make([]engage.StudentDetection, len(fr))
		for j, d := range fr {
			dets[j] = engage.StudentDetection{
				ID:         d.ID,
				Region:     d.Region,
				Confidence: d.Confidence,
				CenterX:    d.CenterX,
				CenterY:    d.CenterY,
				Box:        engage.BoundingBox{X1: d.X1, Y1: d.Y1, X2: d.X2, Y2: d.Y2},
			}
		}
		frames[i] = dets
	}

	tracker := engage.NewScriptedTracker(frames...)
	aggregator := engage.NewAggregator(s.newDetectors()...)
	processor := engage.NewEngagementProcessor(engage.ProcessorConfig{
		GridRows: s.cfg.GetGridRows(),
		GridCols: s.cfg.GetGridCols(),
	}, tracker, aggregator, s.classifier)

	results := make([]*engage.FrameResult, 0, len(frames))
	for i := range frames {
		// The scripted tracker ignores the frame payload; it replays the
		// detections recorded for this index.
		res, err := processor.ProcessFrame(nil)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("process frame %d: %v", i, err))
			return
		}
		results = append(results, res)
	}

	if err := s.saveLecture(req.LectureID, req.Source, results); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("save lecture: %v", err))
		return
	}

	httputil.WriteJSONOK(w, processVideoResponse{LectureID: req.LectureID, Frames: results})
}

// saveLecture flattens frame results into store rows in one transaction.
func (s *Server) saveLecture(lectureID, source string, results []*engage.FrameResult) error {
	var frames []db.FrameRow
	var students []db.StudentRow
	seen := make(map[string]bool)
	var engagementSum float64

	for _, fr := range results {
		frames = append(frames, db.FrameRow{
			LectureID:         lectureID,
			FrameIndex:        fr.FrameNumber,
			AverageEngagement: fr.ClassEngagement,
			HighlyEngaged:     fr.HighlyEngaged,
			ModeratelyEngaged: fr.ModeratelyEngaged,
			Disengaged:        fr.Disengaged,
			TotalStudents:     fr.TotalStudents,
		})
		engagementSum += fr.ClassEngagement

		for _, st := range fr.Students {
			seen[st.ID] = true
			row := db.StudentRow{
				LectureID:       lectureID,
				FrameIndex:      fr.FrameNumber,
				StudentID:       st.ID,
				SeatNumber:      st.Seat.Number,
				SeatRow:         st.Seat.Row,
				SeatCol:         st.Seat.Col,
				EngagementScore: st.Score,
			}
			if st.Predictions != nil {
				row.Boredom = predictionPtr(st.Predictions, "boredom")
				row.Engagement = predictionPtr(st.Predictions, "engagement")
				row.Confusion = predictionPtr(st.Predictions, "confusion")
				row.Frustration = predictionPtr(st.Predictions, "frustration")
			}
			students = append(students, row)
		}
	}

	avg := 0.0
	if len(frames) > 0 {
		avg = engagementSum / float64(len(frames))
	}
	lecture := db.Lecture{
		LectureID:     lectureID,
		Source:        source,
		FrameCount:    len(frames),
		StudentCount:  len(seen),
		AvgEngagement: avg,
	}
	return s.db.SaveLecture(lecture, frames, students)
}

func predictionPtr(predictions map[string]float64, state string) *float64 {
	if v, ok := predictions[state]; ok {
		return &v
	}
	return nil
}

func (s *Server) engagementByID(w http.ResponseWriter, r *http.Request) {
	lectureID := strings.TrimPrefix(r.URL.Path, "/api/engagement/")
	if lectureID == "" || strings.Contains(lectureID, "/") {
		httputil.BadRequest(w, "missing or malformed lecture id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		res, err := s.db.GetLecture(lectureID)
		if errors.Is(err, db.ErrLectureNotFound) {
			httputil.NotFound(w, fmt.Sprintf("lecture %s not found", lectureID))
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("get lecture: %v", err))
			return
		}
		httputil.WriteJSONOK(w, res)

	case http.MethodDelete:
		err := s.db.DeleteLecture(lectureID)
		if errors.Is(err, db.ErrLectureNotFound) {
			httputil.NotFound(w, fmt.Sprintf("lecture %s not found", lectureID))
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("delete lecture: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"deleted": lectureID})

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) modelImportance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.classifier == nil || !s.classifier.IsTrained() {
		httputil.NotFound(w, "no trained model loaded")
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "engagement"
	}
	importance, err := s.classifier.FeatureImportance(state)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"state": state, "importance": importance})
}

func (s *Server) lectureReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/report/")
	if id := strings.TrimSuffix(path, "/timeline.png"); id != path {
		s.lectureTimeline(w, r, id)
		return
	}

	lectureID := path
	if lectureID == "" || strings.Contains(lectureID, "/") {
		httputil.BadRequest(w, "missing or malformed lecture id")
		return
	}

	res, err := s.db.GetLecture(lectureID)
	if errors.Is(err, db.ErrLectureNotFound) {
		httputil.NotFound(w, fmt.Sprintf("lecture %s not found", lectureID))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get lecture: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteLectureHTML(w, res); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render report: %v", err))
	}
}

// lectureTimeline renders the engagement timeline PNG into the configured
// report directory and serves it. A student query parameter narrows the plot
// to one tracked student's rows.
func (s *Server) lectureTimeline(w http.ResponseWriter, r *http.Request, lectureID string) {
	if lectureID == "" || strings.Contains(lectureID, "/") {
		httputil.BadRequest(w, "missing or malformed lecture id")
		return
	}

	res, err := s.db.GetLecture(lectureID)
	if errors.Is(err, db.ErrLectureNotFound) {
		httputil.NotFound(w, fmt.Sprintf("lecture %s not found", lectureID))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get lecture: %v", err))
		return
	}

	if studentID := r.URL.Query().Get("student"); studentID != "" {
		rows, err := s.db.StudentTimeline(lectureID, studentID)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("student timeline: %v", err))
			return
		}
		if len(rows) == 0 {
			httputil.NotFound(w, fmt.Sprintf("student %s not found in lecture %s", studentID, lectureID))
			return
		}
		res.Students = rows
	}
	if len(res.Students) == 0 {
		httputil.NotFound(w, fmt.Sprintf("lecture %s has no student results", lectureID))
		return
	}

	dir := s.cfg.GetReportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("create report directory: %v", err))
		return
	}
	out, err := report.SaveTimelinePNG(dir, res)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render timeline: %v", err))
		return
	}
	http.ServeFile(w, r, out)
}
