package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/httputil"
)

// maxScanBodyBytes caps ingest request bodies. A full reader batch of a few
// thousand scans fits well under this.
const maxScanBodyBytes = 4 << 20

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.ingestScans(w, r)
	case http.MethodGet:
		s.listScans(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// ingestScans accepts either a single scan object or an array of scans.
// Handheld readers post live single scans and flush buffered batches to the
// same URL, so the shape is detected from the payload itself.
func (s *Server) ingestScans(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScanBodyBytes+1))
	if err != nil {
		httputil.BadRequest(w, "Failed to read request body")
		return
	}
	if len(body) > maxScanBodyBytes {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	payload := bytes.TrimLeft(body, " \t\r\n")
	if len(payload) == 0 {
		httputil.BadRequest(w, "Empty request body")
		return
	}

	var scans []*engine.ScanEvent
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &scans); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid scan batch: %v", err))
			return
		}
	} else {
		var scan engine.ScanEvent
		if err := json.Unmarshal(payload, &scan); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid scan: %v", err))
			return
		}
		scans = []*engine.ScanEvent{&scan}
	}

	if len(scans) == 0 {
		httputil.BadRequest(w, "Empty scan batch")
		return
	}
	for i, scan := range scans {
		if scan == nil {
			httputil.BadRequest(w, fmt.Sprintf("Scan %d: null entry", i))
			return
		}
		if err := validateScan(scan); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Scan %d: %v", i, err))
			return
		}
	}

	if err := s.db.InsertScans(scans); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store scans: %v", err))
		return
	}
	s.metrics.AddScansIngested(len(scans))

	ids := make([]string, len(scans))
	for i, scan := range scans {
		ids[i] = scan.ID
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"ingested": len(scans),
		"ids":      ids,
	})
}

// validateScan rejects scans the pipeline cannot use. Location is optional
// (no-fix scans are stored and skipped by clustering) but a half coordinate
// is always a client bug.
func validateScan(scan *engine.ScanEvent) error {
	if scan.EventID == "" {
		return errors.New("missing eventId")
	}
	if scan.WristbandID == "" {
		return errors.New("missing wristbandId")
	}
	if (scan.Lat == nil) != (scan.Lon == nil) {
		return errors.New("lat and lon must be set together")
	}
	if scan.Lat != nil {
		if *scan.Lat < -90 || *scan.Lat > 90 {
			return fmt.Errorf("latitude %f out of range", *scan.Lat)
		}
		if *scan.Lon < -180 || *scan.Lon > 180 {
			return fmt.Errorf("longitude %f out of range", *scan.Lon)
		}
	}
	if scan.AccuracyM != nil && *scan.AccuracyM < 0 {
		return fmt.Errorf("accuracyM %f must be non-negative", *scan.AccuracyM)
	}
	if scan.GateID != nil {
		return errors.New("gateId is assigned by the pipeline")
	}
	return nil
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		httputil.BadRequest(w, "Missing 'event' parameter")
		return
	}

	limit := 0 // no limit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	scans, err := s.db.ScansByEvent(eventID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve scans: %v", err))
		return
	}
	if scans == nil {
		scans = []engine.ScanEvent{}
	}

	httputil.WriteJSONOK(w, scans)
}
