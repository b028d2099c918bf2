package engine

import (
	"sort"
	"strings"

	"github.com/gatewise-data/gatewise/internal/geo"
)

// Venue-adaptive merge thresholds. The venue's spatial extent picks the
// scale: indoor halls need tighter duplicate detection than festival grounds.
const (
	IndoorExtentM     = 100.0
	UrbanExtentM      = 500.0
	IndoorThresholdM  = 20.0
	UrbanThresholdM   = 30.0
	OutdoorThresholdM = 50.0

	// AggressiveMergeFactor widens the distance bar for substring name
	// matches. Known precision/recall trade-off: two distinct gates sharing
	// a generic name can over-merge at 1.5x.
	AggressiveMergeFactor = 1.5
)

// genericNameTokens are stripped from display names before canonicalization.
var genericNameTokens = []string{"gate", "entrance", "virtual", "manual", "-"}

// canonicalCategories is the fixed vocabulary normalized names collapse to.
var canonicalCategories = []string{"vip", "staff", "general", "artist", "vendor", "press"}

// NormalizeGateName lowercases a display name, strips generic tokens, and
// canonicalizes to the category vocabulary by substring match. A name that
// strips down to nothing becomes "general"; anything else keeps its stripped
// form.
func NormalizeGateName(name string) string {
	n := strings.ToLower(name)
	for _, tok := range genericNameTokens {
		n = strings.ReplaceAll(n, tok, "")
	}
	n = strings.Join(strings.Fields(n), " ")

	for _, cat := range canonicalCategories {
		if strings.Contains(n, cat) {
			return cat
		}
	}
	if n == "" {
		return "general"
	}
	return n
}

// VenueExtentM returns the maximum pairwise distance between located gates.
// Fewer than two located gates give extent 0.
func VenueExtentM(gates []Gate) float64 {
	var extent float64
	for i := range gates {
		pi, ok := gates[i].Coordinate()
		if !ok {
			continue
		}
		for j := i + 1; j < len(gates); j++ {
			pj, ok := gates[j].Coordinate()
			if !ok {
				continue
			}
			if d := geo.DistanceMeters(pi, pj); d > extent {
				extent = d
			}
		}
	}
	return extent
}

// MergeThresholdM classifies a venue extent into a duplicate-distance
// threshold: indoor under 100 m, urban under 500 m, outdoor beyond.
func MergeThresholdM(extentM float64) float64 {
	switch {
	case extentM < IndoorExtentM:
		return IndoorThresholdM
	case extentM < UrbanExtentM:
		return UrbanThresholdM
	default:
		return OutdoorThresholdM
	}
}

// MergeGroup is one planned consolidation. Primary survives and moves to
// Centroid; Duplicates are folded into it and deleted.
type MergeGroup struct {
	PrimaryID  string
	Duplicates []string
	Centroid   geo.Point
}

// PlanMerges detects near-duplicate gates and groups them greedily: the
// chronologically first unprocessed gate seeds a group and absorbs every
// unprocessed gate whose name and distance qualify, then the next seed is
// picked, until no gates remain. Gates without coordinates are never merged;
// distance cannot be verified for them.
func PlanMerges(gates []Gate) []MergeGroup {
	ordered := make([]Gate, len(gates))
	copy(ordered, gates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	threshold := MergeThresholdM(VenueExtentM(gates))

	var groups []MergeGroup
	processed := make([]bool, len(ordered))
	for i := range ordered {
		if processed[i] {
			continue
		}
		processed[i] = true
		seed := &ordered[i]
		seedPt, ok := seed.Coordinate()
		if !ok {
			continue
		}

		members := []geo.Point{seedPt}
		var dups []string
		for j := i + 1; j < len(ordered); j++ {
			if processed[j] {
				continue
			}
			pt, ok := ordered[j].Coordinate()
			if !ok {
				continue
			}
			if !shouldMerge(seed.Name, ordered[j].Name, geo.DistanceMeters(seedPt, pt), threshold) {
				continue
			}
			processed[j] = true
			members = append(members, pt)
			dups = append(dups, ordered[j].ID)
		}
		if len(dups) == 0 {
			continue
		}

		centroid, _ := geo.Centroid(members)
		groups = append(groups, MergeGroup{
			PrimaryID:  seed.ID,
			Duplicates: dups,
			Centroid:   centroid,
		})
	}
	return groups
}

// shouldMerge decides whether two gates are the same physical entrance:
// equal normalized names within the threshold, or a substring name match
// within the aggressive 1.5x threshold.
func shouldMerge(nameA, nameB string, distanceM, thresholdM float64) bool {
	na, nb := NormalizeGateName(nameA), NormalizeGateName(nameB)
	if na == nb && distanceM <= thresholdM {
		return true
	}
	if (strings.Contains(na, nb) || strings.Contains(nb, na)) && distanceM <= AggressiveMergeFactor*thresholdM {
		return true
	}
	return false
}

// ConsolidateBindings folds the bindings of a merge group's members into one
// binding per category on the primary gate. Sample counts are summed and the
// maximum confidence carries forward, so no evidence is silently dropped;
// Beta pseudo-counts combine additively above the shared prior.
func ConsolidateBindings(group MergeGroup, bindings []GateBinding) []GateBinding {
	member := map[string]bool{group.PrimaryID: true}
	for _, id := range group.Duplicates {
		member[id] = true
	}

	merged := make(map[string]*GateBinding)
	for i := range bindings {
		b := bindings[i]
		if !member[b.GateID] {
			continue
		}
		alpha, beta := b.Alpha, b.Beta
		if alpha < 1 {
			alpha = 1
		}
		if beta < 1 {
			beta = 1
		}

		m, ok := merged[b.Category]
		if !ok {
			merged[b.Category] = &GateBinding{
				GateID:      group.PrimaryID,
				Category:    b.Category,
				Status:      b.Status,
				Confidence:  b.Confidence,
				SampleCount: b.SampleCount,
				Alpha:       alpha,
				Beta:        beta,
				UpdatedAt:   b.UpdatedAt,
			}
			continue
		}

		m.SampleCount += b.SampleCount
		if b.Confidence > m.Confidence {
			m.Confidence = b.Confidence
		}
		if b.Status.rank() > m.Status.rank() {
			m.Status = b.Status
		}
		if b.UpdatedAt.After(m.UpdatedAt) {
			m.UpdatedAt = b.UpdatedAt
		}
		m.Alpha += alpha - 1
		m.Beta += beta - 1
	}

	out := make([]GateBinding, 0, len(merged))
	for _, m := range merged {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
