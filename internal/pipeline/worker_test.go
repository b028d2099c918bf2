package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise-data/gatewise/internal/timeutil"
)

func TestWorkerRunOnceProcessesActiveEvents(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-a", "vip", testLatA, testLonA, 12, testEpoch)
	insertBlob(t, database, "evt-b", "general", testLatB, testLonB, 13, testEpoch)

	eng := testEngine(t, database)
	w := NewWorker(eng, time.Second, timeutil.NewMockClock(testEpoch))

	require.NoError(t, w.RunOnce(context.Background()))

	gatesA, err := database.GatesByEvent("evt-a")
	require.NoError(t, err)
	assert.Len(t, gatesA, 1)
	gatesB, err := database.GatesByEvent("evt-b")
	require.NoError(t, err)
	assert.Len(t, gatesB, 1)
}

func TestWorkerRunOnceSkipsInFlightEvent(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-busy", "vip", testLatA, testLonA, 12, testEpoch)

	eng := testEngine(t, database)
	require.True(t, eng.inflight.tryBegin("evt-busy"))
	defer eng.inflight.end("evt-busy")

	w := NewWorker(eng, time.Second, timeutil.NewMockClock(testEpoch))
	assert.NoError(t, w.RunOnce(context.Background()), "an in-flight event is skipped, not an error")

	gates, err := database.GatesByEvent("evt-busy")
	require.NoError(t, err)
	assert.Empty(t, gates)
}

func TestWorkerRunOnceHonorsCancellation(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-c", "vip", testLatA, testLonA, 12, testEpoch)

	eng := testEngine(t, database)
	w := NewWorker(eng, time.Second, timeutil.NewMockClock(testEpoch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, w.RunOnce(ctx))
}

func TestWorkerDefaultInterval(t *testing.T) {
	t.Parallel()
	eng := NewEngine(nil, nil, nil, timeutil.NewMockClock(testEpoch))
	w := NewWorker(eng, 0, nil)
	assert.Equal(t, DefaultInterval, w.interval)
	assert.NotNil(t, w.clock, "clock falls back to the engine's")
}

func TestWorkerTickAndStop(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-tick", "vip", testLatA, testLonA, 12, testEpoch)

	clock := timeutil.NewMockClock(testEpoch)
	eng := NewEngine(database, testConfig(), nil, clock)
	w := NewWorker(eng, time.Second, clock)

	w.Start()
	defer w.Stop()

	// Advance until the ticker fires and the cycle lands. The loop
	// goroutine registers its ticker asynchronously, so keep nudging.
	deadline := time.Now().Add(5 * time.Second)
	for {
		clock.Advance(time.Second)
		gates, err := database.GatesByEvent("evt-tick")
		require.NoError(t, err)
		if len(gates) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never processed the event")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.Stop() // must not hang, double Stop with the deferred one must be safe
}
