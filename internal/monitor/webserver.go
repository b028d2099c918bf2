// Package monitor serves the operator status surface: an event summary
// page, an echarts gate map, and the epsilon learner's k-distance plot.
// It reads the same store the pipeline writes and never mutates anything.
package monitor

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gatewise-data/gatewise/internal/config"
	"github.com/gatewise-data/gatewise/internal/db"
	"github.com/gatewise-data/gatewise/internal/httputil"
)

//go:embed status.html
var statusHTML embed.FS

type Monitor struct {
	db      *db.DB
	cfg     *config.TuningConfig
	started time.Time
}

// New builds the monitor over the given store. cfg may be nil.
func New(database *db.DB, cfg *config.TuningConfig) *Monitor {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Monitor{
		db:      database,
		cfg:     cfg,
		started: time.Now(),
	}
}

// AttachRoutes mounts the monitor pages on mux under /monitor.
func (m *Monitor) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/monitor", m.handleStatus)
	mux.HandleFunc("/monitor/", m.handleStatus)
	mux.HandleFunc("/monitor/map", m.handleGateMap)
	mux.HandleFunc("/monitor/elbow", m.handleElbowPlot)
}

// handleStatus renders the per-event summary table.
func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/monitor" && r.URL.Path != "/monitor/" {
		http.NotFound(w, r)
		return
	}

	overviews, err := m.db.EventOverviews()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to summarize events: %v", err))
		return
	}

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Uptime      string
		Interval    string
		GeneratedAt string
		Events      []db.EventOverview
	}{
		Uptime:      time.Since(m.started).Round(time.Second).String(),
		Interval:    m.cfg.GetProcessInterval().String(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Events:      overviews,
	}

	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}
