package orchestration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/prompts"
	"github.com/itsneelabh/fraudmind/storage"
)

// decisionLabels maps decisions to their Spanish presentation labels.
var decisionLabels = map[core.Decision]string{
	core.DecisionApprove:   "Aprobada",
	core.DecisionChallenge: "Requiere validación",
	core.DecisionBlock:     "Bloqueada",
	core.DecisionEscalate:  "Revisión humana",
}

// agentPathNames maps stage names to their friendly path labels. Both
// debate stages collapse into a single "Debate" entry.
var agentPathNames = map[string]string{
	"TransactionContext":  "Context",
	"BehavioralPattern":   "Behavior",
	"PolicyRAG":           "RAG",
	"ThreatIntel":         "Web",
	"EvidenceAggregation": "Evidence",
	"DebateProFraud":      "Debate",
	"DebateProCustomer":   "Debate",
	"Arbiter":             "Decisión",
	"Explainability":      "Explicación",
}

const defaultAgentPath = "Context → Behavior → RAG → Web → Debate → Arbiter → Explicación"

// HitlReasonText renders the long Spanish string for a short HITL reason
// tag. Unknown tags (like agent_error:<Stage>) render as-is.
func HitlReasonText(reason string) string {
	switch reason {
	case core.HitlReasonPolicyOrLowConfidence:
		return "Política o baja confianza requiere revisión humana"
	case core.HitlReasonBorderlineConfidence:
		return "Nivel de confianza límite requiere evaluación manual"
	}
	return reason
}

// buildAgentPath reconstructs the executed agent path from the audit
// events of this transaction, skipping error entries and deduplicating
// the debate stages.
func buildAgentPath(ctx context.Context, audit storage.AuditSink, transactionID string) (string, error) {
	events, err := audit.GetEvents(ctx, transactionID)
	if err != nil {
		return "", err
	}

	seen := map[string]bool{}
	var parts []string
	for _, event := range events {
		if strings.Contains(event.Agent, "_error") {
			continue
		}
		friendly, ok := agentPathNames[event.Agent]
		if !ok {
			friendly = event.Agent
		}
		if !seen[friendly] {
			seen[friendly] = true
			parts = append(parts, friendly)
		}
	}

	if len(parts) == 0 {
		return defaultAgentPath, nil
	}
	return strings.Join(parts, " → "), nil
}

// ExplainabilityStage renders the three explanations: a customer-facing
// sentence, a short audit line, and the detailed six-section report.
type ExplainabilityStage struct {
	audit   storage.AuditSink
	model   core.AIClient
	prompts *prompts.Loader
	logger  core.Logger
}

func (s *ExplainabilityStage) Name() string { return "Explainability" }

func customerExplanation(decision core.Decision) string {
	switch decision {
	case core.DecisionApprove:
		return "La transacción fue aprobada. No se detectaron señales relevantes."
	case core.DecisionChallenge:
		return "La transacción requiere validación adicional por señales inusuales detectadas."
	case core.DecisionBlock:
		return "La transacción fue bloqueada por alta probabilidad de fraude según señales y evidencias."
	default:
		return "La transacción requiere revisión humana para una validación adicional."
	}
}

func auditExplanation(state *EvalState, agentPath string) string {
	var parts []string
	if len(state.CitationsInternal) > 0 {
		ids := make([]string, len(state.CitationsInternal))
		for i, c := range state.CitationsInternal {
			ids[i] = c.PolicyID
		}
		parts = append(parts, "Se aplicó la política "+strings.Join(ids, ", "))
	}
	if len(state.CitationsExternal) > 0 {
		parts = append(parts, "se detectó alerta externa")
	}
	parts = append(parts, "Ruta de agentes: "+agentPath)
	return strings.Join(parts, ". ") + "."
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// detailedReport renders the six-section Markdown report from the
// evaluation state.
func detailedReport(state *EvalState, agentPath string) string {
	var b strings.Builder
	decision := state.Decision

	// 1) Final decision and confidence
	b.WriteString("## 1) Decisión final y nivel de confianza\n\n")
	label, ok := decisionLabels[decision]
	if !ok {
		label = string(decision)
	}
	fmt.Fprintf(&b, "**Decisión:** %s (%s)\n\n", label, decision)
	fmt.Fprintf(&b, "**Riesgo de fraude:** %.0f%% (%.2f)\n\n", state.Confidence*100, state.Confidence)

	var reason string
	switch {
	case len(state.Signals) > 2:
		reason = fmt.Sprintf("%s y %d señales adicionales detectadas.", state.Signals[0], len(state.Signals)-1)
	case len(state.Signals) == 2:
		reason = fmt.Sprintf("%s y 1 señal adicional detectada.", state.Signals[0])
	case len(state.Signals) == 1:
		reason = state.Signals[0]
	case decision == core.DecisionApprove:
		reason = "Transacción dentro de parámetros normales del cliente."
	default:
		reason = "Requiere evaluación adicional por contexto de riesgo."
	}
	fmt.Fprintf(&b, "**Resumen:** %s\n\n", reason)

	// 2) Key signals
	b.WriteString("## 2) Señales clave que influyeron en la decisión\n\n")
	if len(state.Signals) > 0 {
		for _, signal := range state.Signals {
			detail := ""
			if state.Metrics.Has(core.MetricBehaviorRisk) {
				detail = fmt.Sprintf(" (riesgo comportamental: %.2f)", state.Metrics.BehaviorRisk)
			} else if state.Metrics.Has(core.MetricAmountRatio) {
				detail = fmt.Sprintf(" (ratio: %.2fx)", state.Metrics.AmountRatio)
			}
			fmt.Fprintf(&b, "- %s%s\n", signal, detail)
		}
	} else {
		b.WriteString("- No se detectaron señales de riesgo significativas.\n")
	}
	b.WriteString("\n")

	// 3) Applied policies
	b.WriteString("## 3) Políticas internas aplicadas (RAG)\n\n")
	if len(state.CitationsInternal) > 0 {
		for i, citation := range state.CitationsInternal {
			fmt.Fprintf(&b, "**Política %d:** %s versión %s (fragmento %s)\n\n",
				i+1, citation.PolicyID, citation.Version, citation.ChunkID)
		}

		b.WriteString("**Aplicación:** ")
		switch decision {
		case core.DecisionChallenge:
			b.WriteString("Las políticas detectadas establecen umbrales de validación que aplican a esta transacción. Se requiere verificación adicional del cliente antes de aprobar.\n")
		case core.DecisionBlock:
			b.WriteString("Las condiciones definidas en las políticas justifican el bloqueo inmediato por alto riesgo de fraude.\n")
		case core.DecisionEscalate:
			b.WriteString("Las políticas requieren escalamiento a revisión humana para casos con estas características específicas.\n")
		default:
			b.WriteString("Las políticas validan que la transacción cumple con los criterios de aprobación establecidos.\n")
		}
	} else {
		b.WriteString("Sin políticas recuperadas.\n")
	}
	b.WriteString("\n")

	// 4) External threat intelligence
	b.WriteString("## 4) Inteligencia de amenazas externas (búsqueda gobernada)\n\n")
	fmt.Fprintf(&b, "**Resultados:** %d\n\n", len(state.CitationsExternal))
	if len(state.CitationsExternal) > 0 {
		for _, citation := range state.CitationsExternal {
			summary := citation.Summary
			if summary == "" {
				summary = "Sin resumen"
			}
			fmt.Fprintf(&b, "- %s — %s\n", citation.URL, summary)
		}
	} else {
		b.WriteString("No se registraron alertas externas relevantes en las fuentes permitidas.\n")
	}
	b.WriteString("\n")

	// 5) Debate summary
	b.WriteString("## 5) Resumen del debate entre agentes Pro-Fraude y Pro-Cliente\n\n")
	if reasoning := state.Debate.ProFraud.Reasoning; reasoning != "" {
		fmt.Fprintf(&b, "**Pro-Fraude:** %s\n\n", truncate(reasoning, 150))
	} else {
		b.WriteString("**Pro-Fraude:** Las señales detectadas sugieren un nivel de riesgo que justifica precaución.\n\n")
	}
	if reasoning := state.Debate.ProCustomer.Reasoning; reasoning != "" {
		fmt.Fprintf(&b, "**Pro-Cliente:** %s\n\n", truncate(reasoning, 150))
	} else {
		b.WriteString("**Pro-Cliente:** Algunos patrones del cliente coinciden con su comportamiento habitual.\n\n")
	}

	// 6) Traceability and next steps
	b.WriteString("## 6) Trazabilidad y siguientes pasos\n\n")
	fmt.Fprintf(&b, "**Ruta de agentes:** %s\n\n", agentPath)

	if state.Hitl.Required {
		fmt.Fprintf(&b, "**¿Se necesita intervención humana?:** Sí — %s\n\n", HitlReasonText(state.Hitl.Reason))
	} else {
		b.WriteString("**¿Se necesita intervención humana?:** No\n\n")
	}

	b.WriteString("**Acción recomendada:** ")
	switch decision {
	case core.DecisionApprove:
		b.WriteString("Procesar la transacción normalmente. El riesgo es aceptable dentro de los parámetros establecidos.")
	case core.DecisionChallenge:
		b.WriteString("Solicitar validación adicional del cliente (OTP, biometría, etc.) antes de aprobar.")
	case core.DecisionBlock:
		b.WriteString("Bloquear la transacción y notificar al cliente sobre actividad sospechosa detectada.")
	default:
		b.WriteString("Derivar el caso a un analista especializado para revisión manual y decisión final.")
	}
	b.WriteString("\n")

	return b.String()
}

func (s *ExplainabilityStage) Run(ctx context.Context, state *EvalState) error {
	agentPath, err := buildAgentPath(ctx, s.audit, state.TransactionID)
	if err != nil {
		agentPath = defaultAgentPath
	}

	if s.model != nil && s.prompts != nil {
		if err := s.runModelAssisted(ctx, state, agentPath); err != nil {
			return err
		}
	} else {
		state.ExplanationCustomer = customerExplanation(state.Decision)
		state.ExplanationAudit = auditExplanation(state, agentPath)
		state.AISummary = detailedReport(state, agentPath)
	}

	s.logger.DebugWithContext(ctx, "Generated explanations", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"decision":       string(state.Decision),
	})
	return nil
}

func (s *ExplainabilityStage) runModelAssisted(ctx context.Context, state *EvalState, agentPath string) error {
	signals := "Ninguna"
	if len(state.Signals) > 0 {
		signals = strings.Join(state.Signals, ", ")
	}

	system, user, err := s.prompts.CustomerExplanation(map[string]string{
		"amount":   strconv.FormatFloat(state.Consolidated.Amount, 'f', 2, 64),
		"decision": string(state.Decision),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
	}

	customerResp, err := s.model.GenerateResponse(ctx, user, &core.AIOptions{
		SystemPrompt: system,
		MaxTokens:    150,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
	}

	system, user, err = s.prompts.AuditExplanation(map[string]string{
		"transaction_id":         state.TransactionID,
		"decision":               string(state.Decision),
		"confidence":             strconv.FormatFloat(state.Confidence, 'f', 2, 64),
		"signals":                signals,
		"internal_citations":     strconv.Itoa(len(state.CitationsInternal)),
		"external_citations":     strconv.Itoa(len(state.CitationsExternal)),
		"pro_fraud_reasoning":    state.Debate.ProFraud.Reasoning,
		"pro_customer_reasoning": state.Debate.ProCustomer.Reasoning,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
	}

	reportResp, err := s.model.GenerateResponse(ctx, user, &core.AIOptions{
		SystemPrompt: system,
		MaxTokens:    1500,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrAgentExecution, err)
	}

	state.ExplanationCustomer = customerResp.Content
	state.ExplanationAudit = auditExplanation(state, agentPath)
	state.AISummary = reportResp.Content
	return nil
}
