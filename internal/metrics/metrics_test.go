package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGeneratorCallsIncrementsByUseCaseAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(GeneratorCalls.WithLabelValues("lesson", "ok"))

	GeneratorCalls.WithLabelValues("lesson", "ok").Inc()

	after := testutil.ToFloat64(GeneratorCalls.WithLabelValues("lesson", "ok"))
	assert.Equal(t, before+1, after)
}

func TestReassessmentDecisionsIncrementsByDecision(t *testing.T) {
	before := testutil.ToFloat64(ReassessmentDecisions.WithLabelValues("promote"))

	ReassessmentDecisions.WithLabelValues("promote").Inc()

	after := testutil.ToFloat64(ReassessmentDecisions.WithLabelValues("promote"))
	assert.Equal(t, before+1, after)
}

func TestDispatcherQueueDepthSetAndRead(t *testing.T) {
	DispatcherQueueDepth.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(DispatcherQueueDepth))

	DispatcherQueueDepth.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(DispatcherQueueDepth))
}
