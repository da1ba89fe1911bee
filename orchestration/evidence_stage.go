package orchestration

import (
	"context"

	"github.com/itsneelabh/fraudmind/core"
)

// EvidenceStage snapshots the accumulated evidence for downstream
// consumers. Side-effect-free with respect to the decision fields.
type EvidenceStage struct {
	logger core.Logger
}

func (s *EvidenceStage) Name() string { return "EvidenceAggregation" }

func (s *EvidenceStage) Run(ctx context.Context, state *EvalState) error {
	signals := make([]string, len(state.Signals))
	copy(signals, state.Signals)

	internal := make([]core.CitationInternal, len(state.CitationsInternal))
	copy(internal, state.CitationsInternal)

	external := make([]core.CitationExternal, len(state.CitationsExternal))
	copy(external, state.CitationsExternal)

	state.Evidence = &Evidence{
		Signals:           signals,
		Metrics:           state.Metrics.Map(),
		CitationsInternal: internal,
		CitationsExternal: external,
	}

	s.logger.DebugWithContext(ctx, "Aggregated evidence", map[string]interface{}{
		"transaction_id":     state.TransactionID,
		"signals":            len(signals),
		"internal_citations": len(internal),
		"external_citations": len(external),
	})
	return nil
}
