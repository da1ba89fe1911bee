package orchestration

import (
	"context"

	"github.com/itsneelabh/fraudmind/core"
)

// BehaviorStage folds the context metrics into a bounded behavioral risk
// score in [0, 1].
type BehaviorStage struct {
	logger core.Logger
}

func (s *BehaviorStage) Name() string { return "BehavioralPattern" }

func (s *BehaviorStage) Run(ctx context.Context, state *EvalState) error {
	amountRatio := 1.0
	if state.Metrics.Has(core.MetricAmountRatio) {
		amountRatio = state.Metrics.AmountRatio
	}

	risk := 0.0

	// Only the highest applicable amount band counts
	switch {
	case amountRatio > 5:
		risk += 0.35
	case amountRatio > 3:
		risk += 0.25
	case amountRatio > 2:
		risk += 0.15
	}

	if state.Metrics.HourOutside {
		risk += 0.15
	}
	if state.Metrics.NewDevice {
		risk += 0.20
	}
	if state.Metrics.NewCountry {
		risk += 0.25
	}

	if risk > 1.0 {
		risk = 1.0
	}

	state.Metrics.SetBehaviorRisk(core.Round2(risk))

	s.logger.DebugWithContext(ctx, "Computed behavior risk score", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"behavior_risk":  state.Metrics.BehaviorRisk,
	})
	return nil
}
