package orchestration

import (
	"context"
	"fmt"

	"github.com/itsneelabh/fraudmind/core"
)

// ThreatIntelStage queries the governed external search for fraud alerts
// mentioning the merchant and country, records external citations, and
// raises the external-alert signal when any allowed result came back.
type ThreatIntelStage struct {
	search ThreatSearcher
	logger core.Logger
}

func (s *ThreatIntelStage) Name() string { return "ThreatIntel" }

func (s *ThreatIntelStage) Run(ctx context.Context, state *EvalState) error {
	query := fmt.Sprintf("fraud alert %s %s", state.Consolidated.MerchantID, state.Consolidated.Country)

	results := s.search.Search(ctx, query)

	state.CitationsExternal = append(state.CitationsExternal, results...)

	if len(results) > 0 && !state.HasSignal(core.SignalExternalAlert) {
		state.AddSignal(core.SignalExternalAlert)
	}

	s.logger.DebugWithContext(ctx, "Threat intel search completed", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"query":          query,
		"results":        len(results),
	})
	return nil
}
