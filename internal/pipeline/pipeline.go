// Package pipeline sequences the gate discovery engine over persisted scan
// events: epsilon learning, density clustering, GMM refinement, gate
// creation, Bayesian assignment, binding confidence updates, and gate
// deduplication, one event at a time. A per-event single-flight guard
// rejects overlapping cycles, and every cycle ends with a persisted report
// of what changed.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatewise-data/gatewise/internal/config"
	"github.com/gatewise-data/gatewise/internal/db"
	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/geo"
	"github.com/gatewise-data/gatewise/internal/idgen"
	"github.com/gatewise-data/gatewise/internal/metrics"
	"github.com/gatewise-data/gatewise/internal/timeutil"
)

// Engine runs full discovery cycles against the store. Construct one per
// process and share it between the interval worker and the process-now API.
type Engine struct {
	db       *db.DB
	cfg      *config.TuningConfig
	metrics  *metrics.Metrics
	clock    timeutil.Clock
	webhook  *ReportWebhook
	inflight inflightGuard
}

// NewEngine wires the pipeline to its store and tuning configuration.
// m may be nil to disable instrumentation; clock may be nil for real time.
func NewEngine(database *db.DB, cfg *config.TuningConfig, m *metrics.Metrics, clock timeutil.Clock) *Engine {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{db: database, cfg: cfg, metrics: m, clock: clock}
}

// SetReportWebhook configures delivery of finished cycle reports to an
// external receiver. Pass nil to disable.
func (e *Engine) SetReportWebhook(h *ReportWebhook) {
	e.webhook = h
}

// bindingKey is the unique (gate, category) key of a binding.
type bindingKey struct {
	gateID   string
	category string
}

// assignment records one scan linked to a gate during the current cycle.
type assignment struct {
	scanID     string
	gateID     string
	category   string
	confidence float64
}

// cycleState is the in-memory snapshot one cycle works over. Stages mutate
// it sequentially; nothing outside the cycle sees it.
type cycleState struct {
	eventID     string
	scans       []engine.ScanEvent
	gates       []engine.Gate
	bindings    map[bindingKey]*engine.GateBinding
	epsilonM    float64
	clusters    []engine.SpatialCluster
	components  []engine.GaussianComponent
	assignments []assignment
	merged      int
	notes       []string
}

func (c *cycleState) note(format string, args ...interface{}) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

func (c *cycleState) fill(report *engine.CycleReport) {
	report.ScansProcessed = len(c.scans)
	report.ScansLinked = len(c.assignments)
	report.ClustersFound = len(c.clusters)
	report.EpsilonM = c.epsilonM
	report.GatesAfter = len(c.gates)
	report.DuplicatesRemoved = c.merged
	report.Note = strings.Join(c.notes, "; ")
}

// ProcessEvent runs one complete discovery cycle for an event and returns
// its report. A second invocation for the same event while one is running
// returns ErrCycleInFlight. Cancellation is cooperative: the cycle checks
// the context between stages and stops early, keeping whatever it already
// committed.
func (e *Engine) ProcessEvent(ctx context.Context, eventID string) (engine.CycleReport, error) {
	if !e.inflight.tryBegin(eventID) {
		e.metrics.IncrementCycleOutcome("busy")
		return engine.CycleReport{}, fmt.Errorf("event %s: %w", eventID, ErrCycleInFlight)
	}
	defer e.inflight.end(eventID)

	started := e.clock.Now()
	report := engine.CycleReport{EventID: eventID, StartedAt: started.UTC()}

	c, err := e.fetchSnapshot(eventID)
	if err != nil {
		e.metrics.IncrementCycleOutcome("error")
		return report, fmt.Errorf("event %s: snapshot: %w", eventID, err)
	}
	report.GatesBefore = len(c.gates)

	e.learnEpsilon(c)
	e.clusterScans(c)
	e.refineClusters(c)
	if err := ctx.Err(); err != nil {
		return e.abortCycle(c, report, started, "clustering", err)
	}

	if err := e.discoverGates(ctx, c); err != nil {
		engine.Opsf("event %s: gate discovery stopped: %v", eventID, err)
		c.note("gate discovery stopped: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return e.abortCycle(c, report, started, "gate discovery", err)
	}

	e.assignScans(ctx, c)
	if err := ctx.Err(); err != nil {
		return e.abortCycle(c, report, started, "assignment", err)
	}

	if err := e.updateBindings(ctx, c); err != nil {
		engine.Opsf("event %s: binding update failed: %v", eventID, err)
		c.note("binding update failed: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return e.abortCycle(c, report, started, "binding update", err)
	}

	e.consolidateGates(ctx, c)

	report.Duration = e.clock.Since(started)
	c.fill(&report)
	if err := withRetry(ctx, e.clock, func() error { return e.db.SaveCycleReport(&report) }); err != nil {
		engine.Opsf("event %s: cycle report not saved: %v", eventID, err)
	}

	e.observeCycle(c, report)
	e.metrics.IncrementCycleOutcome("ok")
	engine.Diagf("event %s: cycle done in %s: %d scans, %d linked, %d clusters, eps %.1fm, gates %d -> %d, %d merged",
		eventID, report.Duration.Round(time.Millisecond), report.ScansProcessed, report.ScansLinked,
		report.ClustersFound, report.EpsilonM, report.GatesBefore, report.GatesAfter, report.DuplicatesRemoved)

	if e.webhook != nil {
		if err := e.webhook.Deliver(ctx, report); err != nil {
			engine.Opsf("event %s: report webhook delivery failed: %v", eventID, err)
		}
	}

	return report, nil
}

// abortCycle finishes a cancelled cycle: committed writes stay, remaining
// stages are skipped, and the partial report is persisted best-effort.
func (e *Engine) abortCycle(c *cycleState, report engine.CycleReport, started time.Time, stage string, cause error) (engine.CycleReport, error) {
	c.note("cancelled after %s", stage)
	report.Duration = e.clock.Since(started)
	c.fill(&report)
	if err := e.db.SaveCycleReport(&report); err != nil {
		engine.Opsf("event %s: cancelled-cycle report not saved: %v", c.eventID, err)
	}
	e.metrics.IncrementCycleOutcome("cancelled")
	engine.Opsf("event %s: cycle cancelled after %s", c.eventID, stage)
	return report, cause
}

// fetchSnapshot loads the event's scans, gates, and bindings concurrently.
// Everything after this point works on the snapshot; the store is only
// touched again to commit results.
func (e *Engine) fetchSnapshot(eventID string) (*cycleState, error) {
	c := &cycleState{eventID: eventID}

	var g errgroup.Group
	g.Go(func() error {
		scans, err := e.db.ScansByEvent(eventID, 0)
		if err != nil {
			return fmt.Errorf("scans: %w", err)
		}
		c.scans = scans
		return nil
	})
	g.Go(func() error {
		gates, err := e.db.GatesByEvent(eventID)
		if err != nil {
			return fmt.Errorf("gates: %w", err)
		}
		c.gates = gates
		return nil
	})
	g.Go(func() error {
		bindings, err := e.db.BindingsByEvent(eventID)
		if err != nil {
			return fmt.Errorf("bindings: %w", err)
		}
		byKey := make(map[bindingKey]*engine.GateBinding, len(bindings))
		for i := range bindings {
			b := bindings[i]
			if b.Alpha < 1 {
				b.Alpha = 1
			}
			if b.Beta < 1 {
				b.Beta = 1
			}
			byKey[bindingKey{b.GateID, b.Category}] = &b
		}
		c.bindings = byKey
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) learnEpsilon(c *cycleState) {
	pts := make([]geo.Point, 0, len(c.scans))
	for i := range c.scans {
		if p, ok := c.scans[i].Coordinate(); ok {
			pts = append(pts, p)
		}
	}
	c.epsilonM, _ = engine.LearnEpsilon(pts, engine.EpsilonParams{
		K:         e.cfg.GetEpsilonK(),
		MinPoints: e.cfg.GetEpsilonMinPoints(),
		FallbackM: e.cfg.GetEpsilonFallbackM(),
	})
	engine.Diagf("event %s: epsilon %.1fm from %d located scans", c.eventID, c.epsilonM, len(pts))
}

func (e *Engine) clusterScans(c *cycleState) {
	c.clusters = engine.Cluster(c.scans, engine.DBSCANParams{
		EpsilonM: c.epsilonM,
		MinPts:   e.cfg.GetDBSCANMinPts(),
	})
	engine.Diagf("event %s: %d spatial clusters", c.eventID, len(c.clusters))
}

func (e *Engine) refineClusters(c *cycleState) {
	c.components = engine.FitGMM(c.scans, c.clusters, engine.GMMParams{
		MaxIterations:        e.cfg.GetGMMMaxIterations(),
		ConvergenceThreshold: e.cfg.GetGMMConvergenceThreshold(),
	})
}

// discoverGates creates a gate for every refined component whose location no
// existing gate already covers, using the venue's merge threshold as the
// coverage radius so creation and deduplication agree on what "same gate"
// means. The founding cluster's unassigned members become the gate's first
// assignments, which is what gives the Bayesian engine a spatial history to
// fit; the dominant category seeds the gate's first binding at the uniform
// prior. The cluster is the evidence the gate was created from, so seeding
// is not Wilson-gated: the founding confirmations fold into the binding in
// the update stage, and the lifecycle policy judges it from there.
func (e *Engine) discoverGates(ctx context.Context, c *cycleState) error {
	if len(c.clusters) == 0 {
		return nil
	}
	coveredM := engine.MergeThresholdM(engine.VenueExtentM(c.gates))
	scanIdx := make(map[string]int, len(c.scans))
	for i := range c.scans {
		scanIdx[c.scans[i].ID] = i
	}

	for i := range c.clusters {
		cl := &c.clusters[i]
		loc := cl.Centroid
		if i < len(c.components) {
			loc = c.components[i].Mean()
		}
		if id, d := nearestGate(c.gates, loc); id != "" && d <= coveredM {
			engine.Tracef("event %s: cluster %d (%d members) covered by gate %s at %.1fm",
				c.eventID, i, len(cl.Members), id, d)
			continue
		}

		id, err := idgen.NewGateID()
		if err != nil {
			return fmt.Errorf("allocate gate id: %w", err)
		}
		category, support := cl.DominantCategory()
		gate := engine.Gate{
			ID:        id,
			EventID:   c.eventID,
			Name:      displayGateName(category),
			Lat:       ptr(loc.Lat),
			Lon:       ptr(loc.Lon),
			CreatedAt: e.clock.Now().UTC(),
		}
		if err := e.db.CreateGate(&gate); err != nil {
			return fmt.Errorf("create gate %s: %w", id, err)
		}
		c.gates = append(c.gates, gate)
		engine.Opsf("event %s: new gate %s %q at (%.6f, %.6f) from %d clustered scans",
			c.eventID, id, gate.Name, loc.Lat, loc.Lon, len(cl.Members))

		e.linkFoundingMembers(ctx, c, cl, id, scanIdx)

		b := &engine.GateBinding{
			GateID:     id,
			Category:   category,
			Status:     engine.BindingUnbound,
			Confidence: engine.NewBetaConfidence().Mean(),
			Alpha:      1,
			Beta:       1,
			UpdatedAt:  e.clock.Now().UTC(),
		}
		if err := e.db.UpsertBinding(b); err != nil {
			return fmt.Errorf("seed binding (%s, %s): %w", id, category, err)
		}
		c.bindings[bindingKey{id, category}] = b
		engine.Diagf("event %s: binding (%s, %s) seeded on %d/%d founding support",
			c.eventID, id, category, support, len(cl.Members))
	}
	return nil
}

// linkFoundingMembers assigns a new gate's founding cluster members to it.
// The members are the evidence the gate was created from, so they link with
// full confidence rather than going through posterior scoring. Failure here
// is non-fatal: the members stay unassigned and the Bayesian stage or a
// later cycle picks them up.
func (e *Engine) linkFoundingMembers(ctx context.Context, c *cycleState, cl *engine.SpatialCluster, gateID string, scanIdx map[string]int) {
	var updates []db.ScanAssignment
	for j := range cl.Members {
		idx, ok := scanIdx[cl.Members[j].ID]
		if !ok || c.scans[idx].GateID != nil {
			continue
		}
		updates = append(updates, db.ScanAssignment{ScanID: cl.Members[j].ID, GateID: gateID})
	}
	if len(updates) == 0 {
		return
	}
	if err := withRetry(ctx, e.clock, func() error { return e.db.AssignScans(updates) }); err != nil {
		engine.Opsf("event %s: founding assignment of %d scans to gate %s failed: %v",
			c.eventID, len(updates), gateID, err)
		c.note("founding assignment to %s failed", gateID)
		return
	}
	for _, u := range updates {
		idx := scanIdx[u.ScanID]
		s := &c.scans[idx]
		s.GateID = ptr2(gateID)
		c.assignments = append(c.assignments, assignment{
			scanID:     u.ScanID,
			gateID:     gateID,
			category:   s.Category,
			confidence: 1,
		})
	}
	engine.Diagf("event %s: gate %s founded with %d member scans", c.eventID, gateID, len(updates))
}

// assignScans attributes every unassigned located scan to its most probable
// gate. The batch write is retried as a whole first; if it keeps failing,
// each assignment retries individually so one bad row cannot block the rest.
func (e *Engine) assignScans(ctx context.Context, c *cycleState) {
	if len(c.gates) == 0 {
		return
	}
	assigner := engine.NewAssigner(c.gates, c.scans)

	var updates []db.ScanAssignment
	assignedIdx := make(map[string]int, 16)
	baseLen := len(c.assignments) // founding links from discovery are already committed
	for i := range c.scans {
		s := &c.scans[i]
		if s.GateID != nil {
			continue
		}
		a, ok := assigner.Assign(*s)
		if !ok {
			continue
		}
		updates = append(updates, db.ScanAssignment{ScanID: s.ID, GateID: a.GateID})
		assignedIdx[s.ID] = i
		c.assignments = append(c.assignments, assignment{
			scanID:     s.ID,
			gateID:     a.GateID,
			category:   s.Category,
			confidence: a.Confidence,
		})
		s.GateID = ptr2(a.GateID)
		engine.Tracef("event %s: scan %s (%s) -> gate %s posterior %.3f",
			c.eventID, s.ID, s.Category, a.GateID, a.Confidence)
	}
	if len(updates) == 0 {
		return
	}

	err := withRetry(ctx, e.clock, func() error { return e.db.AssignScans(updates) })
	if err == nil {
		return
	}
	engine.Opsf("event %s: batch of %d assignments failed (%v), retrying individually",
		c.eventID, len(updates), err)

	committed := make(map[string]bool, len(updates))
	for _, u := range updates {
		if ctx.Err() != nil {
			break
		}
		u := u
		if ierr := withRetry(ctx, e.clock, func() error { return e.db.AssignScan(u.ScanID, u.GateID) }); ierr != nil {
			engine.Opsf("event %s: assignment of scan %s skipped: %v", c.eventID, u.ScanID, ierr)
			continue
		}
		committed[u.ScanID] = true
	}
	if len(committed) == len(updates) {
		return
	}

	// Drop this stage's uncommitted assignments from the snapshot so the
	// binding stage only counts evidence that actually persisted.
	kept := c.assignments[:baseLen]
	for _, a := range c.assignments[baseLen:] {
		if committed[a.scanID] {
			kept = append(kept, a)
			continue
		}
		c.scans[assignedIdx[a.scanID]].GateID = nil
	}
	dropped := len(updates) - len(committed)
	c.assignments = kept
	c.note("%d assignments skipped after retries", dropped)
}

// updateBindings folds this cycle's assignments into each touched gate's
// Beta evidence (the matched category is confirmed, every other binding on
// the gate contradicted), creates bindings whose accumulated history clears
// the Wilson creation bound, then recomputes every binding's lifecycle
// status and persists the results.
func (e *Engine) updateBindings(ctx context.Context, c *cycleState) error {
	now := e.clock.Now().UTC()

	for _, a := range c.assignments {
		for key, b := range c.bindings {
			if key.gateID != a.gateID {
				continue
			}
			if key.category == a.category {
				b.Alpha++
			} else {
				b.Beta++
			}
			b.SampleCount++
			b.UpdatedAt = now
		}
	}

	// Categories a gate serves but has no binding for yet: create one once
	// the gate's full assignment history clears the creation bound. New
	// bindings start at the uniform prior; evidence accrues next cycle.
	gateTotals := make(map[string]int)
	gateCategories := make(map[string]map[string]int)
	for i := range c.scans {
		s := &c.scans[i]
		if s.GateID == nil {
			continue
		}
		gateTotals[*s.GateID]++
		m := gateCategories[*s.GateID]
		if m == nil {
			m = make(map[string]int, 4)
			gateCategories[*s.GateID] = m
		}
		m[s.Category]++
	}
	for gateID, categories := range gateCategories {
		for category, matches := range categories {
			key := bindingKey{gateID, category}
			if _, exists := c.bindings[key]; exists {
				continue
			}
			if !engine.ShouldCreateBinding(matches, gateTotals[gateID], e.cfg.GetBindingCreationThreshold(), e.cfg.GetWilsonZ()) {
				continue
			}
			c.bindings[key] = &engine.GateBinding{
				GateID:     gateID,
				Category:   category,
				Status:     engine.BindingUnbound,
				Confidence: engine.NewBetaConfidence().Mean(),
				Alpha:      1,
				Beta:       1,
				UpdatedAt:  now,
			}
			engine.Diagf("event %s: binding (%s, %s) created on %d/%d historical support",
				c.eventID, gateID, category, matches, gateTotals[gateID])
		}
	}

	policy := engine.LifecyclePolicy{
		ProbationMinSamples: e.cfg.GetProbationMinSamples(),
		EnforcedMinSamples:  e.cfg.GetEnforcedMinSamples(),
		EnforcedWilson:      e.cfg.GetEnforcedWilsonThreshold(),
		RemovalConfidence:   e.cfg.GetRemovalConfidence(),
		RemovalMinSamples:   e.cfg.GetRemovalMinSamples(),
		WilsonZ:             e.cfg.GetWilsonZ(),
	}

	var upserts []*engine.GateBinding
	var removals []*engine.GateBinding
	for key, b := range c.bindings {
		decision := policy.EvaluateBinding(*b)
		if decision.Remove {
			removals = append(removals, b)
			delete(c.bindings, key)
			continue
		}
		if decision.Status != b.Status {
			engine.Opsf("event %s: binding (%s, %s) %s -> %s (wilson %.3f over %d samples)",
				c.eventID, key.gateID, key.category, b.Status, decision.Status, decision.Wilson, b.SampleCount)
			b.Status = decision.Status
		}
		b.Confidence = engine.BetaConfidence{Alpha: b.Alpha, Beta: b.Beta}.Mean()
		upserts = append(upserts, b)
	}
	sort.Slice(upserts, func(i, j int) bool {
		if upserts[i].GateID != upserts[j].GateID {
			return upserts[i].GateID < upserts[j].GateID
		}
		return upserts[i].Category < upserts[j].Category
	})
	sort.Slice(removals, func(i, j int) bool {
		if removals[i].GateID != removals[j].GateID {
			return removals[i].GateID < removals[j].GateID
		}
		return removals[i].Category < removals[j].Category
	})

	if err := withRetry(ctx, e.clock, func() error { return e.db.UpsertBindings(upserts) }); err != nil {
		return fmt.Errorf("persist bindings: %w", err)
	}
	for _, b := range removals {
		b := b
		if err := withRetry(ctx, e.clock, func() error { return e.db.DeleteBinding(b.GateID, b.Category) }); err != nil {
			engine.Opsf("event %s: binding (%s, %s) removal failed: %v", c.eventID, b.GateID, b.Category, err)
			c.note("binding (%s, %s) removal failed", b.GateID, b.Category)
			continue
		}
		engine.Opsf("event %s: binding (%s, %s) removed: confidence %.2f stayed under %.2f across %d samples",
			c.eventID, b.GateID, b.Category, b.Confidence, policy.RemovalConfidence, b.SampleCount)
	}
	return nil
}

// consolidateGates merges near-duplicate gates. Each group commits
// independently; a cancelled cycle keeps the merges already applied and
// skips the rest.
func (e *Engine) consolidateGates(ctx context.Context, c *cycleState) {
	groups := engine.PlanMerges(c.gates)
	for _, group := range groups {
		if ctx.Err() != nil {
			c.note("merge pass interrupted")
			break
		}
		if err := e.applyMerge(ctx, c, group); err != nil {
			engine.Opsf("event %s: merge into gate %s failed: %v", c.eventID, group.PrimaryID, err)
			c.note("merge into %s failed", group.PrimaryID)
			continue
		}
		c.merged += len(group.Duplicates)
		engine.Opsf("event %s: merged %d duplicate gate(s) into %s", c.eventID, len(group.Duplicates), group.PrimaryID)
	}
	if c.merged == 0 {
		return
	}

	// Scans must never reference a gate that no longer exists. The merge
	// repoints before deleting, so a nonzero count here is a bug surfaced
	// for operator attention, not auto-repaired.
	if n, err := e.db.OrphanedScanCount(c.eventID); err != nil {
		engine.Opsf("event %s: orphan check failed: %v", c.eventID, err)
	} else if n > 0 {
		engine.Opsf("event %s: integrity violation: %d scans reference deleted gates", c.eventID, n)
		c.note("%d orphaned scan references", n)
	}
}

// applyMerge executes one planned consolidation: relocate the primary to the
// member centroid, repoint and delete duplicates, and replace the group's
// bindings with the consolidated set. The in-memory snapshot is updated to
// match what was committed.
func (e *Engine) applyMerge(ctx context.Context, c *cycleState, group engine.MergeGroup) error {
	members := map[string]bool{group.PrimaryID: true}
	for _, id := range group.Duplicates {
		members[id] = true
	}
	var groupBindings []engine.GateBinding
	for key, b := range c.bindings {
		if members[key.gateID] {
			groupBindings = append(groupBindings, *b)
		}
	}
	sort.Slice(groupBindings, func(i, j int) bool {
		if groupBindings[i].GateID != groupBindings[j].GateID {
			return groupBindings[i].GateID < groupBindings[j].GateID
		}
		return groupBindings[i].Category < groupBindings[j].Category
	})
	consolidated := engine.ConsolidateBindings(group, groupBindings)

	if err := withRetry(ctx, e.clock, func() error {
		return e.db.UpdateGateLocation(group.PrimaryID, group.Centroid.Lat, group.Centroid.Lon)
	}); err != nil {
		return fmt.Errorf("relocate primary: %w", err)
	}
	for _, dup := range group.Duplicates {
		dup := dup
		if err := withRetry(ctx, e.clock, func() error {
			_, err := e.db.RepointScans(dup, group.PrimaryID)
			return err
		}); err != nil {
			return fmt.Errorf("repoint scans of %s: %w", dup, err)
		}
		if err := withRetry(ctx, e.clock, func() error { return e.db.DeleteGate(dup) }); err != nil {
			return fmt.Errorf("delete duplicate %s: %w", dup, err)
		}
	}

	ptrs := make([]*engine.GateBinding, len(consolidated))
	for i := range consolidated {
		ptrs[i] = &consolidated[i]
	}
	if err := withRetry(ctx, e.clock, func() error { return e.db.UpsertBindings(ptrs) }); err != nil {
		return fmt.Errorf("persist consolidated bindings: %w", err)
	}

	// Mirror the committed merge onto the snapshot.
	for i := range c.scans {
		s := &c.scans[i]
		if s.GateID != nil && members[*s.GateID] && *s.GateID != group.PrimaryID {
			s.GateID = ptr2(group.PrimaryID)
		}
	}
	kept := c.gates[:0]
	for _, g := range c.gates {
		switch {
		case g.ID == group.PrimaryID:
			g.Lat = ptr(group.Centroid.Lat)
			g.Lon = ptr(group.Centroid.Lon)
			kept = append(kept, g)
		case members[g.ID]:
			// dropped
		default:
			kept = append(kept, g)
		}
	}
	c.gates = kept
	for key := range c.bindings {
		if members[key.gateID] {
			delete(c.bindings, key)
		}
	}
	for i := range consolidated {
		b := consolidated[i]
		c.bindings[bindingKey{b.GateID, b.Category}] = &b
	}
	return nil
}

func (e *Engine) observeCycle(c *cycleState, report engine.CycleReport) {
	e.metrics.ObserveCycleDuration(report.Duration)
	e.metrics.AddScansAssigned(report.ScansLinked)
	e.metrics.AddGatesMerged(report.DuplicatesRemoved)
	e.metrics.SetGatesActive(c.eventID, len(c.gates))

	counts := make(map[engine.BindingStatus]int, 3)
	for _, b := range c.bindings {
		counts[b.Status]++
	}
	for _, status := range []engine.BindingStatus{engine.BindingUnbound, engine.BindingProbation, engine.BindingEnforced} {
		e.metrics.SetBindings(c.eventID, string(status), counts[status])
	}
}

// nearestGate returns the closest located gate to p and its distance in
// meters. Gates without coordinates never match.
func nearestGate(gates []engine.Gate, p geo.Point) (string, float64) {
	bestID, bestD := "", 0.0
	for i := range gates {
		gp, ok := gates[i].Coordinate()
		if !ok {
			continue
		}
		if d := geo.DistanceMeters(gp, p); bestID == "" || d < bestD {
			bestID, bestD = gates[i].ID, d
		}
	}
	return bestID, bestD
}

// displayGateName derives an operator-facing gate name from the dominant
// wristband category of the founding cluster.
func displayGateName(category string) string {
	switch category {
	case "":
		return "General Gate"
	case "vip":
		return "VIP Gate"
	}
	return strings.ToUpper(category[:1]) + category[1:] + " Gate"
}

func ptr(v float64) *float64 { return &v }

func ptr2(v string) *string { return &v }
