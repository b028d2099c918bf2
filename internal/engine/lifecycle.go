package engine

import "math"

// Lifecycle policy defaults.
const (
	DefaultProbationMinSamples = 5
	DefaultEnforcedMinSamples  = 15
	DefaultEnforcedWilson      = 0.80
	DefaultRemovalConfidence   = 0.30
	DefaultRemovalMinSamples   = 50
)

// LifecyclePolicy holds the thresholds driving binding status transitions.
// Status is a pure function of the binding's current evidence; nothing here
// is hand-edited state.
type LifecyclePolicy struct {
	ProbationMinSamples int
	EnforcedMinSamples  int
	EnforcedWilson      float64
	RemovalConfidence   float64
	RemovalMinSamples   int
	WilsonZ             float64
}

// DefaultLifecyclePolicy returns the standard thresholds.
func DefaultLifecyclePolicy() LifecyclePolicy {
	return LifecyclePolicy{
		ProbationMinSamples: DefaultProbationMinSamples,
		EnforcedMinSamples:  DefaultEnforcedMinSamples,
		EnforcedWilson:      DefaultEnforcedWilson,
		RemovalConfidence:   DefaultRemovalConfidence,
		RemovalMinSamples:   DefaultRemovalMinSamples,
		WilsonZ:             DefaultWilsonZ,
	}
}

// LifecycleDecision is the recomputed state for one binding.
type LifecycleDecision struct {
	Status BindingStatus
	Remove bool    // persistent poor performance, binding should be deleted
	Wilson float64 // the bound the decision was made against
}

// Evaluate recomputes a binding's status from its evidence. successes is the
// confirmed-assignment count, samples the total observation count, and
// confidence the Beta posterior mean.
//
// Removal is checked last and overrides everything: a binding that has
// stayed below RemovalConfidence across at least RemovalMinSamples
// observations is removed no matter how much volume it has. Evidence of
// failure outweighs evidence of volume.
func (p LifecyclePolicy) Evaluate(confidence float64, successes, samples int) LifecycleDecision {
	wilson := WilsonLowerBound(successes, samples, p.WilsonZ)

	var status BindingStatus
	switch {
	case samples < p.ProbationMinSamples:
		status = BindingUnbound
	case samples < p.EnforcedMinSamples:
		status = BindingProbation
	case wilson >= p.EnforcedWilson:
		status = BindingEnforced
	default:
		// Enough volume but the pessimistic bound never cleared the bar.
		status = BindingUnbound
	}

	remove := samples >= p.RemovalMinSamples && confidence < p.RemovalConfidence
	return LifecycleDecision{Status: status, Remove: remove, Wilson: wilson}
}

// EvaluateBinding applies Evaluate to a persisted binding record, deriving
// successes from the Beta pseudo-counts (alpha starts at 1). Rows written
// before the pseudo-counts existed evaluate as the uniform prior.
func (p LifecyclePolicy) EvaluateBinding(b GateBinding) LifecycleDecision {
	alpha, beta := b.Alpha, b.Beta
	if alpha <= 0 {
		alpha = 1
	}
	if beta <= 0 {
		beta = 1
	}
	successes := int(math.Round(alpha - 1))
	conf := BetaConfidence{Alpha: alpha, Beta: beta}
	return p.Evaluate(conf.Mean(), successes, b.SampleCount)
}
