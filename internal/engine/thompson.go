package engine

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ThompsonPick draws one sample from every candidate binding's Beta
// posterior and returns the index of the largest draw. Compared to picking
// the highest mean, sampling keeps low-evidence bindings explorable in
// proportion to their remaining uncertainty. ok is false for an empty
// candidate set. src may be nil to use the global random source.
func ThompsonPick(bindings []GateBinding, src rand.Source) (int, bool) {
	if len(bindings) == 0 {
		return 0, false
	}

	best, bestDraw := 0, math.Inf(-1)
	for i := range bindings {
		alpha, beta := bindings[i].Alpha, bindings[i].Beta
		if alpha <= 0 {
			alpha = 1
		}
		if beta <= 0 {
			beta = 1
		}
		draw := distuv.Beta{Alpha: alpha, Beta: beta, Src: src}.Rand()
		if draw > bestDraw {
			best, bestDraw = i, draw
		}
	}
	return best, true
}
