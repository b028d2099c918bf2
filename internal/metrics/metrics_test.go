package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.ObserveCycleDuration(time.Second)
	m.IncrementCycleOutcome("ok")
	m.AddScansIngested(5)
	m.AddScansAssigned(3)
	m.AddGatesMerged(1)
	m.SetGatesActive("evt1", 4)
	m.SetBindings("evt1", "enforced", 2)
	m.IncrementWebhookDelivery("ok")
}

func TestMetricsRecord(t *testing.T) {
	// New registers with the default registerer, so it runs once per
	// test binary.
	m := New()

	m.AddScansIngested(7)
	m.AddScansIngested(0) // no-op
	if got := testutil.ToFloat64(m.ScansIngested); got != 7 {
		t.Errorf("ScansIngested = %v, want 7", got)
	}

	m.AddScansAssigned(4)
	if got := testutil.ToFloat64(m.ScansAssigned); got != 4 {
		t.Errorf("ScansAssigned = %v, want 4", got)
	}

	m.IncrementCycleOutcome("ok")
	m.IncrementCycleOutcome("ok")
	m.IncrementCycleOutcome("error")
	if got := testutil.ToFloat64(m.CycleOutcome.WithLabelValues("ok")); got != 2 {
		t.Errorf("CycleOutcome[ok] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CycleOutcome.WithLabelValues("error")); got != 1 {
		t.Errorf("CycleOutcome[error] = %v, want 1", got)
	}

	m.SetGatesActive("summer-fest", 6)
	if got := testutil.ToFloat64(m.GatesActive.WithLabelValues("summer-fest")); got != 6 {
		t.Errorf("GatesActive = %v, want 6", got)
	}

	m.SetBindings("summer-fest", "probation", 3)
	if got := testutil.ToFloat64(m.Bindings.WithLabelValues("summer-fest", "probation")); got != 3 {
		t.Errorf("Bindings = %v, want 3", got)
	}

	m.ObserveCycleDuration(120 * time.Millisecond)
	if got := testutil.CollectAndCount(m.CycleDuration); got != 1 {
		t.Errorf("CycleDuration streams = %d, want 1", got)
	}
}
