package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/geo"
	"github.com/gatewise-data/gatewise/internal/httputil"
	"github.com/gatewise-data/gatewise/internal/monitoring"
)

// handleElbowPlot renders the sorted k-distance curve the epsilon learner
// works from, with the learned epsilon marked, as a PNG. Useful when a
// venue's clustering looks off and the operator wants to see whether the
// elbow is where the learner put it.
func (m *Monitor) handleElbowPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	eventID := r.URL.Query().Get("event")
	if eventID == "" {
		httputil.BadRequest(w, "Missing 'event' parameter")
		return
	}

	scans, err := m.db.ScansByEvent(eventID, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve scans: %v", err))
		return
	}

	pts := make([]geo.Point, 0, len(scans))
	for i := range scans {
		if p, ok := scans[i].Coordinate(); ok {
			pts = append(pts, p)
		}
	}

	epsM, curve := engine.LearnEpsilon(pts, engine.EpsilonParams{
		K:         m.cfg.GetEpsilonK(),
		MinPoints: m.cfg.GetEpsilonMinPoints(),
		FallbackM: m.cfg.GetEpsilonFallbackM(),
	})
	if len(curve) == 0 {
		httputil.NotFound(w, fmt.Sprintf("Only %d located scans; not enough for a k-distance curve", len(pts)))
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("k-distance curve (event %s)", eventID)
	p.X.Label.Text = "Point rank"
	p.Y.Label.Text = fmt.Sprintf("%d-NN distance (m)", m.cfg.GetEpsilonK())

	xys := make(plotter.XYs, len(curve))
	for i, d := range curve {
		xys[i] = plotter.XY{X: float64(i), Y: d}
	}
	curveLine, err := plotter.NewLine(xys)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to build curve: %v", err))
		return
	}
	curveLine.Width = vg.Points(1)
	p.Add(curveLine)
	p.Legend.Add("k-distance", curveLine)

	epsLine, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: epsM},
		{X: float64(len(curve) - 1), Y: epsM},
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to build epsilon marker: %v", err))
		return
	}
	epsLine.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	epsLine.Width = vg.Points(1)
	epsLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(epsLine)
	p.Legend.Add(fmt.Sprintf("epsilon %.1fm", epsM), epsLine)

	p.Legend.Top = true
	p.Legend.Left = false

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		monitoring.Logf("elbow plot write failed: %v", err)
	}
}
