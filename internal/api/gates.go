package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gatewise-data/gatewise/internal/db"
	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/httputil"
)

func (s *Server) listGates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		httputil.BadRequest(w, "Missing 'event' parameter")
		return
	}

	gates, err := s.db.GatesByEvent(eventID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve gates: %v", err))
		return
	}
	if gates == nil {
		gates = []engine.Gate{}
	}

	httputil.WriteJSONOK(w, gates)
}

// gateDetail is the /api/gates/{id} response: the gate row with its
// category bindings inlined.
type gateDetail struct {
	engine.Gate
	Bindings []engine.GateBinding `json:"bindings"`
}

func (s *Server) showGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/gates/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "No such gate")
		return
	}

	gate, err := s.db.GateByID(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("No gate with id %s", id))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve gate: %v", err))
		return
	}

	bindings, err := s.db.BindingsByGate(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve bindings: %v", err))
		return
	}
	if bindings == nil {
		bindings = []engine.GateBinding{}
	}

	httputil.WriteJSONOK(w, gateDetail{Gate: gate, Bindings: bindings})
}

func (s *Server) listBindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	gateID := r.URL.Query().Get("gate")
	eventID := r.URL.Query().Get("event")
	if gateID == "" && eventID == "" {
		httputil.BadRequest(w, "Missing 'event' or 'gate' parameter")
		return
	}

	var (
		bindings []engine.GateBinding
		err      error
	)
	if gateID != "" {
		bindings, err = s.db.BindingsByGate(gateID)
	} else {
		bindings, err = s.db.BindingsByEvent(eventID)
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve bindings: %v", err))
		return
	}
	if bindings == nil {
		bindings = []engine.GateBinding{}
	}

	httputil.WriteJSONOK(w, bindings)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		httputil.BadRequest(w, "Missing 'event' parameter")
		return
	}

	limit := 20 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	reports, err := s.db.ReportsByEvent(eventID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve reports: %v", err))
		return
	}
	if reports == nil {
		reports = []engine.CycleReport{}
	}

	httputil.WriteJSONOK(w, reports)
}

// recommendation is the /api/recommend response.
type recommendation struct {
	GateID      string               `json:"gateId"`
	Category    string               `json:"category"`
	Status      engine.BindingStatus `json:"status"`
	Confidence  float64              `json:"confidence"`
	SampleCount int                  `json:"sampleCount"`
}

// recommendCategory Thompson-samples the gate's category bindings and
// returns the winning category. The optional comma-separated 'categories'
// parameter restricts the candidate set, for staff asking "which of these
// ticket types should this entrance take?".
func (s *Server) recommendCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	gateID := r.URL.Query().Get("gate")
	if gateID == "" {
		httputil.BadRequest(w, "Missing 'gate' parameter")
		return
	}

	bindings, err := s.db.BindingsByGate(gateID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve bindings: %v", err))
		return
	}

	if filter := r.URL.Query().Get("categories"); filter != "" {
		allowed := make(map[string]bool)
		for _, c := range strings.Split(filter, ",") {
			if c = strings.TrimSpace(c); c != "" {
				allowed[strings.ToLower(c)] = true
			}
		}
		kept := bindings[:0]
		for _, b := range bindings {
			if allowed[b.Category] {
				kept = append(kept, b)
			}
		}
		bindings = kept
	}

	idx, ok := engine.ThompsonPick(bindings, nil)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("No candidate bindings for gate %s", gateID))
		return
	}

	pick := bindings[idx]
	httputil.WriteJSONOK(w, recommendation{
		GateID:      pick.GateID,
		Category:    pick.Category,
		Status:      pick.Status,
		Confidence:  pick.Confidence,
		SampleCount: pick.SampleCount,
	})
}
