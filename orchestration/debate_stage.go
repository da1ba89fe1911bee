package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/prompts"
)

// The debate stages produce two-sided recommendations with bounded
// confidence deltas. Each runs the model-assisted path when a reasoning
// model is configured, falling back to the deterministic rules on parse
// failure; without a model, the deterministic rules are the only path.

// Model-path delta bounds. The arbiter treats both paths identically,
// which slightly widens the score envelope when the model is in use.
const (
	maxProFraudDelta    = 0.15
	maxProCustomerDelta = 0.05
	defaultDebateDelta  = 0.02
)

// debateReply is the JSON object the model is prompted to return.
type debateReply struct {
	RecommendedDecision string  `json:"recommended_decision"`
	ConfidenceDelta     float64 `json:"confidence_delta"`
	Reasoning           string  `json:"reasoning"`
}

// parseDebateReply decodes the model output, defaulting missing fields
// and clamping the delta to [0, maxDelta]. The ok result is false when
// the content is not a JSON object at all.
func parseDebateReply(content string, maxDelta float64, defaultReasoning string) (core.DebatePosition, bool) {
	var reply debateReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &reply); err != nil {
		return core.DebatePosition{}, false
	}

	decision := core.Decision(reply.RecommendedDecision)
	if !decision.Valid() {
		decision = core.DecisionChallenge
	}

	delta := reply.ConfidenceDelta
	if delta == 0 {
		delta = defaultDebateDelta
	}
	if delta < 0 {
		delta = 0
	}
	if delta > maxDelta {
		delta = maxDelta
	}

	reasoning := reply.Reasoning
	if reasoning == "" {
		reasoning = defaultReasoning
	}

	return core.DebatePosition{
		RecommendedDecision: decision,
		ConfidenceDelta:     core.Round2(delta),
		Reasoning:           reasoning,
	}, true
}

func debateVars(state *EvalState) map[string]string {
	view := state.Consolidated

	signals := "Ninguna"
	if len(state.Signals) > 0 {
		signals = strings.Join(state.Signals, ", ")
	}

	return map[string]string{
		"transaction_id":  state.TransactionID,
		"amount":          strconv.FormatFloat(view.Amount, 'f', 2, 64),
		"country":         view.Country,
		"channel":         view.Channel,
		"timestamp":       view.Timestamp,
		"signals":         signals,
		"amount_ratio":    strconv.FormatFloat(state.Metrics.AmountRatio, 'f', 2, 64),
		"hour_outside":    strconv.FormatBool(state.Metrics.HourOutside),
		"new_country":     strconv.FormatBool(state.Metrics.NewCountry),
		"new_device":      strconv.FormatBool(state.Metrics.NewDevice),
		"behavior_risk":   strconv.FormatFloat(state.Metrics.BehaviorRisk, 'f', 2, 64),
		"policy_count":    strconv.Itoa(len(state.CitationsInternal)),
		"external_count":  strconv.Itoa(len(state.CitationsExternal)),
		"avg_amount":      strconv.FormatFloat(view.UsualAmountAvg, 'f', 2, 64),
		"usual_countries": strings.Join(view.UsualCountries, ", "),
	}
}

func generateDebatePosition(ctx context.Context, model core.AIClient, system, user string, maxDelta float64, defaultReasoning string) (core.DebatePosition, bool, error) {
	resp, err := model.GenerateResponse(ctx, user, &core.AIOptions{
		SystemPrompt: system,
		Temperature:  0.3,
		MaxTokens:    500,
	})
	if err != nil {
		return core.DebatePosition{}, false, fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
	}

	position, ok := parseDebateReply(resp.Content, maxDelta, defaultReasoning)
	return position, ok, nil
}

// DebateProFraudStage argues for treating the transaction as fraud.
type DebateProFraudStage struct {
	model   core.AIClient
	prompts *prompts.Loader
	logger  core.Logger
}

func (s *DebateProFraudStage) Name() string { return "DebateProFraud" }

// fallbackProFraud is the deterministic pro-fraud position.
func fallbackProFraud(state *EvalState) core.DebatePosition {
	amountRatio := state.Metrics.AmountRatio

	hasExternalAlert := state.HasSignal(core.SignalExternalAlert)
	hasAmountIssue := state.HasSignal(core.SignalAmountOutOfRange)
	hasHourIssue := state.HasSignal(core.SignalUnusualHour)

	var decision core.Decision
	var reasoning string

	switch {
	case hasExternalAlert && amountRatio > 3:
		decision = core.DecisionBlock
		reasoning = "Alta probabilidad de fraude: alerta externa detectada con monto significativamente elevado."
	case hasAmountIssue && hasHourIssue:
		decision = core.DecisionChallenge
		reasoning = "Múltiples señales de riesgo: monto y horario fuera de patrones habituales."
	default:
		decision = core.DecisionChallenge
		reasoning = "Señales de riesgo detectadas que requieren verificación adicional."
	}

	var delta float64
	switch {
	case len(state.Signals) >= 3:
		delta = 0.05
	case len(state.Signals) == 2:
		delta = 0.02
	default:
		delta = 0.00
	}

	return core.DebatePosition{
		RecommendedDecision: decision,
		ConfidenceDelta:     delta,
		Reasoning:           reasoning,
	}
}

func (s *DebateProFraudStage) Run(ctx context.Context, state *EvalState) error {
	position := core.DebatePosition{}
	usedModel := false

	if s.model != nil && s.prompts != nil {
		system, user, err := s.prompts.DebateProFraud(debateVars(state))
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
		}

		modelPosition, ok, err := generateDebatePosition(ctx, s.model, system, user,
			maxProFraudDelta, "Análisis de fraude completado.")
		if err != nil {
			return err
		}
		if ok {
			position = modelPosition
			usedModel = true
		}
	}

	if !usedModel {
		position = fallbackProFraud(state)
	}

	state.Debate.ProFraud = position

	s.logger.DebugWithContext(ctx, "Pro-fraud debate position taken", map[string]interface{}{
		"transaction_id":       state.TransactionID,
		"recommended_decision": string(position.RecommendedDecision),
		"confidence_delta":     position.ConfidenceDelta,
		"model_assisted":       usedModel,
	})
	return nil
}

// DebateProCustomerStage argues for the customer's legitimacy.
type DebateProCustomerStage struct {
	model   core.AIClient
	prompts *prompts.Loader
	logger  core.Logger
}

func (s *DebateProCustomerStage) Name() string { return "DebateProCustomer" }

// fallbackProCustomer is the deterministic pro-customer position.
func fallbackProCustomer(state *EvalState) core.DebatePosition {
	allMinor := true
	for _, sig := range state.Signals {
		if sig != core.SignalUnusualHour && sig != core.SignalNewDevice {
			allMinor = false
			break
		}
	}

	var decision core.Decision
	var reasoning string

	if len(state.Signals) <= 1 && (len(state.Signals) == 0 || allMinor) {
		decision = core.DecisionApprove
		reasoning = "Bajo riesgo: señales menores que no justifican bloqueo o challenge."
	} else {
		decision = core.DecisionChallenge
		reasoning = "Aunque el cliente tiene historial limpio, las señales detectadas requieren verificación."
	}

	delta := 0.03
	if state.HasSignal(core.SignalExternalAlert) {
		delta = 0.00
	}

	return core.DebatePosition{
		RecommendedDecision: decision,
		ConfidenceDelta:     delta,
		Reasoning:           reasoning,
	}
}

func (s *DebateProCustomerStage) Run(ctx context.Context, state *EvalState) error {
	position := core.DebatePosition{}
	usedModel := false

	if s.model != nil && s.prompts != nil {
		system, user, err := s.prompts.DebateProCustomer(debateVars(state))
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
		}

		modelPosition, ok, err := generateDebatePosition(ctx, s.model, system, user,
			maxProCustomerDelta, "Defensa del cliente completada.")
		if err != nil {
			return err
		}
		if ok {
			position = modelPosition
			usedModel = true
		}
	}

	if !usedModel {
		position = fallbackProCustomer(state)
	}

	state.Debate.ProCustomer = position

	s.logger.DebugWithContext(ctx, "Pro-customer debate position taken", map[string]interface{}{
		"transaction_id":       state.TransactionID,
		"recommended_decision": string(position.RecommendedDecision),
		"confidence_delta":     position.ConfidenceDelta,
		"model_assisted":       usedModel,
	})
	return nil
}
