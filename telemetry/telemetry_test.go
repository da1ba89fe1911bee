package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmissionWithoutProviderIsNoOp(t *testing.T) {
	// Nothing initialized: these must not panic
	Counter("decision.total", "module", ModuleOrchestration, "decision", "APPROVE")
	Histogram("decision.confidence", 0.75, "module", ModuleOrchestration)
	Duration("stage.duration_ms", time.Now(), "agent", "Arbiter")
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init("", "localhost:4318")
	assert.Error(t, err)
}

func TestLabelAttrs(t *testing.T) {
	attrs := labelAttrs([]string{"module", ModuleRAG, "operation", "query"})
	assert.Len(t, attrs, 2)
	assert.Equal(t, "module", string(attrs[0].Key))

	// Odd trailing label is dropped
	attrs = labelAttrs([]string{"module", ModuleStorage, "dangling"})
	assert.Len(t, attrs, 1)
}
