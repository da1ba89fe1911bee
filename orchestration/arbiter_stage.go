package orchestration

import (
	"context"

	"github.com/itsneelabh/fraudmind/core"
)

// ArbiterStage computes the fraud-risk confidence and applies the
// ordered decision rules. First matching rule wins.
type ArbiterStage struct {
	logger core.Logger
}

func (s *ArbiterStage) Name() string { return "Arbiter" }

func (s *ArbiterStage) Run(ctx context.Context, state *EvalState) error {
	behaviorRisk := state.Metrics.BehaviorRisk

	amountRatio := 1.0
	if state.Metrics.Has(core.MetricAmountRatio) {
		amountRatio = state.Metrics.AmountRatio
	}

	hourOutside := state.Metrics.HourOutside
	newCountry := state.Metrics.NewCountry
	newDevice := state.Metrics.NewDevice
	policyHint := state.Metrics.PolicyHint
	hasExternalAlert := state.HasSignal(core.SignalExternalAlert)

	confidence := behaviorRisk
	if len(state.CitationsExternal) > 0 {
		confidence += 0.20
	}
	confidence += state.Debate.ProFraud.ConfidenceDelta
	confidence -= state.Debate.ProCustomer.ConfidenceDelta

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	var decision core.Decision
	switch {
	// Rule 1: escalate on policy hint with new country and device
	case policyHint == core.DecisionEscalate && newCountry && newDevice:
		decision = core.DecisionEscalate

	// Rule 2: block on high confidence with external alert
	case confidence >= 0.75 && hasExternalAlert && amountRatio > 3:
		decision = core.DecisionBlock

	// Rule 3: challenge on amount + hour issues
	case amountRatio > 3 && hourOutside:
		decision = core.DecisionChallenge

	// Rule 4: approve on low confidence with few signals
	case confidence < 0.45 && len(state.Signals) <= 1:
		decision = core.DecisionApprove

	// Rule 5: default based on confidence
	case confidence >= 0.60:
		decision = core.DecisionChallenge
	default:
		decision = core.DecisionEscalate
	}

	hitl := core.HitlInfo{}
	if decision == core.DecisionEscalate {
		hitl = core.HitlInfo{Required: true, Reason: core.HitlReasonPolicyOrLowConfidence}
	} else if confidence >= 0.45 && confidence <= 0.60 {
		hitl = core.HitlInfo{Required: true, Reason: core.HitlReasonBorderlineConfidence}
	}

	state.Decision = decision
	state.SetConfidence(core.Round2(confidence))
	state.Hitl = hitl

	s.logger.InfoWithContext(ctx, "Arbiter decision", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"decision":       string(decision),
		"confidence":     state.Confidence,
		"hitl_required":  hitl.Required,
	})
	return nil
}
