// Package api exposes the engagement pipeline over HTTP: lecture
// processing, stored results, model introspection and rendered reports.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/classlens-data/classlens/internal/config"
	"github.com/classlens-data/classlens/internal/db"
	"github.com/classlens-data/classlens/internal/engage"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves the engagement API. The classifier may be nil or untrained;
// processing then returns features and class metrics without predictions.
type Server struct {
	db         *db.DB
	classifier *engage.EngagementClassifier
	cfg        *config.AppConfig

	// maxBody caps the replay request body, in bytes.
	maxBody int64

	// newDetectors builds the per-request detector set. Injected so tests
	// and replay-only deployments can run without OpenCV models.
	newDetectors func() []engage.Detector
}

// NewServer wires the API server. detectors may be nil for replay-only
// setups where regions are pre-tracked and feature defaults suffice.
func NewServer(database *db.DB, classifier *engage.EngagementClassifier, cfg *config.AppConfig, detectors func() []engage.Detector) *Server {
	if detectors == nil {
		detectors = func() []engage.Detector { return nil }
	}
	return &Server{
		db:           database,
		classifier:   classifier,
		cfg:          cfg,
		maxBody:      maxProcessBody,
		newDetectors: detectors,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", s.healthz)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/lectures", s.listLectures)
	mux.HandleFunc("/api/process-video", s.processVideo)
	mux.HandleFunc("/api/engagement/", s.engagementByID)
	mux.HandleFunc("/api/model/importance", s.modelImportance)
	mux.HandleFunc("/api/report/", s.lectureReport)
	return mux
}
