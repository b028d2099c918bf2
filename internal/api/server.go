// Package api serves the gatewise HTTP surface: scan ingestion, the
// process-now trigger, and read endpoints for gates, bindings, cycle
// reports, and category recommendations.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gatewise-data/gatewise/internal/config"
	"github.com/gatewise-data/gatewise/internal/db"
	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/httputil"
	"github.com/gatewise-data/gatewise/internal/metrics"
	"github.com/gatewise-data/gatewise/internal/monitoring"
	"github.com/gatewise-data/gatewise/internal/pipeline"
	"github.com/gatewise-data/gatewise/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Processor runs a processing cycle for one event on demand. Satisfied by
// *pipeline.Engine.
type Processor interface {
	ProcessEvent(ctx context.Context, eventID string) (engine.CycleReport, error)
}

type Server struct {
	db        *db.DB
	processor Processor
	cfg       *config.TuningConfig
	metrics   *metrics.Metrics
}

// NewServer builds the API server. processor may be nil for a read-only
// surface; cfg and m may be nil.
func NewServer(database *db.DB, processor Processor, cfg *config.TuningConfig, m *metrics.Metrics) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		db:        database,
		processor: processor,
		cfg:       cfg,
		metrics:   m,
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
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
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
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scans", s.handleScans)
	mux.HandleFunc("/api/process", s.processNow)
	mux.HandleFunc("/api/gates", s.listGates)
	mux.HandleFunc("/api/gates/", s.showGate)
	mux.HandleFunc("/api/bindings", s.listBindings)
	mux.HandleFunc("/api/reports", s.listReports)
	mux.HandleFunc("/api/recommend", s.recommendCategory)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// processNow runs a processing cycle for one event synchronously and
// returns its cycle report. A cycle already in flight for the event is a
// 409; the caller retries after the current cycle finishes.
func (s *Server) processNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		httputil.BadRequest(w, "Missing 'event' parameter")
		return
	}

	if s.processor == nil {
		httputil.InternalServerError(w, "Processing is not enabled on this server")
		return
	}

	report, err := s.processor.ProcessEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, pipeline.ErrCycleInFlight) {
			httputil.Conflict(w, fmt.Sprintf("Processing cycle already in flight for event %s", eventID))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Processing cycle failed: %v", err))
		return
	}

	httputil.WriteJSONOK(w, report)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	ids, err := s.db.ActiveEventIDs()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if ids == nil {
		ids = []string{}
	}

	httputil.WriteJSONOK(w, ids)
}

// showConfig echoes the tuning values currently in effect, defaults
// included, in the same schema LoadTuningConfig reads.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.cfg.Effective())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "version": version.Version})
}
