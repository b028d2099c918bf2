package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gatewise-data/gatewise/internal/geo"
	"github.com/gatewise-data/gatewise/internal/httputil"
)

// handleGateMap renders the event's scans and gates as an XY scatter in
// meters around the centroid of the located scans.
// Query params:
//   - event (required)
//   - max_points (optional; default 8000) to reduce payload size
func (m *Monitor) handleGateMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		httputil.BadRequest(w, "Missing 'event' parameter")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	scans, err := m.db.ScansByEvent(eventID, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve scans: %v", err))
		return
	}
	gates, err := m.db.GatesByEvent(eventID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve gates: %v", err))
		return
	}

	located := make([]geo.Point, 0, len(scans))
	for i := range scans {
		if p, ok := scans[i].Coordinate(); ok {
			located = append(located, p)
		}
	}

	origin, ok := geo.Centroid(located)
	if !ok {
		// No located scans; anchor the plane on the first located gate.
		for i := range gates {
			if p, gok := gates[i].Coordinate(); gok {
				origin, ok = p, true
				break
			}
		}
	}
	if !ok {
		httputil.NotFound(w, "No located scans or gates for event")
		return
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(scans) > maxPoints {
		stride = int(math.Ceil(float64(len(scans)) / float64(maxPoints)))
	}

	assigned := make([]opts.ScatterData, 0, len(scans)/stride+1)
	unassigned := make([]opts.ScatterData, 0, len(scans)/stride+1)
	maxAbs := 0.0
	for i := 0; i < len(scans); i += stride {
		p, pok := scans[i].Coordinate()
		if !pok {
			continue
		}
		x, y := geo.LocalXY(origin, p)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}

		pt := opts.ScatterData{Value: []interface{}{x, y}, Name: scans[i].Category}
		if scans[i].GateID != nil {
			assigned = append(assigned, pt)
		} else {
			unassigned = append(unassigned, pt)
		}
	}

	gatePts := make([]opts.ScatterData, 0, len(gates))
	for i := range gates {
		p, gok := gates[i].Coordinate()
		if !gok {
			continue
		}
		x, y := geo.LocalXY(origin, p)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		gatePts = append(gatePts, opts.ScatterData{Value: []interface{}{x, y}, Name: gates[i].Name})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gatewise Gate Map", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Gate Map", Subtitle: fmt.Sprintf("event=%s scans=%d gates=%d stride=%d", eventID, len(assigned)+len(unassigned), len(gatePts), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "East (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "North (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("unassigned", unassigned, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("assigned", assigned, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}))
	scatter.AddSeries("gates", gatePts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 18}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
