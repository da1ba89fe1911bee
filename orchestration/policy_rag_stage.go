package orchestration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itsneelabh/fraudmind/core"
)

// PolicyRAGStage retrieves the fraud policies most relevant to the
// accumulated signals and metrics, records internal citations, and
// derives a policy hint from the retrieved rule text.
type PolicyRAGStage struct {
	retriever PolicyRetriever
	logger    core.Logger
}

func (s *PolicyRAGStage) Name() string { return "PolicyRAG" }

// hintSeverity orders policy hints: higher-severity hints win regardless
// of retrieval order.
func hintSeverity(hint core.Decision) int {
	switch hint {
	case core.DecisionEscalate:
		return 3
	case core.DecisionBlock:
		return 2
	case core.DecisionChallenge:
		return 1
	}
	return 0
}

// deriveHint scans rule text for a decision keyword, matching the arrow
// form ("→ BLOCK") or the bare keyword.
func deriveHint(ruleText string) core.Decision {
	upper := strings.ToUpper(ruleText)
	switch {
	case strings.Contains(upper, string(core.DecisionEscalate)):
		return core.DecisionEscalate
	case strings.Contains(upper, string(core.DecisionBlock)):
		return core.DecisionBlock
	case strings.Contains(upper, string(core.DecisionChallenge)):
		return core.DecisionChallenge
	}
	return ""
}

func (s *PolicyRAGStage) Run(ctx context.Context, state *EvalState) error {
	queryParts := make([]string, 0, len(state.Signals)+4)
	queryParts = append(queryParts, state.Signals...)

	if state.Metrics.Has(core.MetricAmountRatio) && state.Metrics.AmountRatio != 0 {
		queryParts = append(queryParts, "amount_ratio="+strconv.FormatFloat(state.Metrics.AmountRatio, 'g', -1, 64))
	}
	if state.Metrics.HourOutside {
		queryParts = append(queryParts, "hour_outside=true")
	}
	if state.Metrics.NewCountry {
		queryParts = append(queryParts, "new_country=true")
	}
	if state.Metrics.NewDevice {
		queryParts = append(queryParts, "new_device=true")
	}

	query := strings.Join(queryParts, "; ")

	docs, err := s.retriever.Query(ctx, query, 2)
	if err != nil {
		return fmt.Errorf("%w: policy retrieval: %v", core.ErrAgentExecution, err)
	}

	var hint core.Decision
	for _, doc := range docs {
		chunkID := doc.Metadata["chunk_id"]
		if chunkID == "" {
			chunkID = "1"
		}
		state.CitationsInternal = append(state.CitationsInternal, core.CitationInternal{
			PolicyID: doc.Metadata["policy_id"],
			ChunkID:  chunkID,
			Version:  doc.Metadata["version"],
		})

		if derived := deriveHint(doc.Content); hintSeverity(derived) > hintSeverity(hint) {
			hint = derived
		}
	}

	state.Metrics.SetPolicyHint(hint)

	s.logger.DebugWithContext(ctx, "Retrieved policies", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"query":          query,
		"citations":      len(docs),
		"policy_hint":    string(hint),
	})
	return nil
}
