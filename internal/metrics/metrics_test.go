package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// Second call is a no-op.
	require.NoError(t, Register(reg))

	IncStart("smp")
	IncStart("smp")
	IncStop("smp")
	IncCrash("smp")
	IncAutoRestart("smp")
	ObserveStartToReady("smp", 3.5)
	SetResidentMemory("smp", 1024)

	assert.Equal(t, float64(2), testutil.ToFloat64(serverStarts.WithLabelValues("smp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(serverStops.WithLabelValues("smp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(serverCrashes.WithLabelValues("smp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(autoRestarts.WithLabelValues("smp")))
	assert.Equal(t, float64(1024), testutil.ToFloat64(residentMemory.WithLabelValues("smp")))
}

func TestStateGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	RecordStateTransition("smp", "offline", "starting")
	SetCurrentState("smp", "offline", false)
	SetCurrentState("smp", "starting", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(stateTransitions.WithLabelValues("smp", "offline", "starting")))
	assert.Equal(t, float64(0), testutil.ToFloat64(currentStates.WithLabelValues("smp", "offline")))
	assert.Equal(t, float64(1), testutil.ToFloat64(currentStates.WithLabelValues("smp", "starting")))
}

func TestHandlerServesExposition(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	// The default gatherer always exposes runtime metrics.
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
