package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/fraudmind/core"
)

func explainState(decision core.Decision) *EvalState {
	state := NewEvalState("T-EXPLAIN", core.ConsolidatedTransaction{Amount: 2000})
	state.Metrics.SetAmountRatio(4.0)
	state.Metrics.SetBehaviorRisk(0.40)
	state.AddSignal(core.SignalAmountOutOfRange)
	state.AddSignal(core.SignalUnusualHour)
	state.Decision = decision
	state.SetConfidence(0.39)
	state.Debate.ProFraud.Reasoning = "Monto y horario fuera de patrones habituales."
	state.Debate.ProCustomer.Reasoning = "El historial del cliente es consistente."
	state.CitationsInternal = []core.CitationInternal{
		{PolicyID: "POL-001", ChunkID: "1", Version: "1.0"},
		{PolicyID: "POL-004", ChunkID: "1", Version: "2.1"},
	}
	return state
}

func runExplain(t *testing.T, state *EvalState, audit *memAuditSink) {
	t.Helper()
	stage := &ExplainabilityStage{audit: audit, logger: &core.NoOpLogger{}}
	require.NoError(t, stage.Run(context.Background(), state))
}

func TestCustomerExplanationPerDecision(t *testing.T) {
	tests := []struct {
		decision core.Decision
		want     string
	}{
		{core.DecisionApprove, "La transacción fue aprobada. No se detectaron señales relevantes."},
		{core.DecisionChallenge, "La transacción requiere validación adicional por señales inusuales detectadas."},
		{core.DecisionBlock, "La transacción fue bloqueada por alta probabilidad de fraude según señales y evidencias."},
		{core.DecisionEscalate, "La transacción requiere revisión humana para una validación adicional."},
	}

	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			state := explainState(tt.decision)
			runExplain(t, state, newMemAuditSink())
			assert.Equal(t, tt.want, state.ExplanationCustomer)
		})
	}
}

func TestAuditExplanationCitesPoliciesAndPath(t *testing.T) {
	state := explainState(core.DecisionChallenge)
	runExplain(t, state, newMemAuditSink())

	assert.Contains(t, state.ExplanationAudit, "Se aplicó la política POL-001, POL-004")
	assert.Contains(t, state.ExplanationAudit, "Ruta de agentes:")
}

func TestDetailedReportSections(t *testing.T) {
	state := explainState(core.DecisionChallenge)
	state.CitationsExternal = []core.CitationExternal{
		{URL: "https://example.com/alerts/1", Summary: "Alerta de fraude reciente."},
	}
	state.Hitl = core.HitlInfo{Required: true, Reason: core.HitlReasonBorderlineConfidence}
	runExplain(t, state, newMemAuditSink())

	report := state.AISummary
	assert.Contains(t, report, "## 1) Decisión final y nivel de confianza")
	assert.Contains(t, report, "## 2) Señales clave que influyeron en la decisión")
	assert.Contains(t, report, "## 3) Políticas internas aplicadas (RAG)")
	assert.Contains(t, report, "## 4) Inteligencia de amenazas externas (búsqueda gobernada)")
	assert.Contains(t, report, "## 5) Resumen del debate entre agentes Pro-Fraude y Pro-Cliente")
	assert.Contains(t, report, "## 6) Trazabilidad y siguientes pasos")

	assert.Contains(t, report, "Requiere validación (CHALLENGE)")
	assert.Contains(t, report, "39% (0.39)")
	assert.Contains(t, report, "**Política 1:** POL-001 versión 1.0 (fragmento 1)")
	assert.Contains(t, report, "https://example.com/alerts/1")
	assert.Contains(t, report, "Nivel de confianza límite requiere evaluación manual")
	assert.Contains(t, report, "Solicitar validación adicional del cliente")
}

func TestBuildAgentPathCollapsesDebateAndSkipsErrors(t *testing.T) {
	audit := newMemAuditSink()
	ctx := context.Background()

	agents := []string{
		"TransactionContext",
		"BehavioralPattern",
		"PolicyRAG",
		"ThreatIntel_error",
		"EvidenceAggregation",
		"DebateProFraud",
		"DebateProCustomer",
		"Arbiter",
	}
	for i, agent := range agents {
		require.NoError(t, audit.Append(ctx, core.AuditEvent{
			TransactionID: "T-PATH",
			Seq:           i + 1,
			Agent:         agent,
		}))
	}

	path, err := buildAgentPath(ctx, audit, "T-PATH")
	require.NoError(t, err)
	assert.Equal(t, "Context → Behavior → RAG → Evidence → Debate → Decisión", path)
}

func TestBuildAgentPathDefaultsWhenEmpty(t *testing.T) {
	path, err := buildAgentPath(context.Background(), newMemAuditSink(), "T-NONE")
	require.NoError(t, err)
	assert.Equal(t, defaultAgentPath, path)
}

func TestHitlReasonText(t *testing.T) {
	assert.Equal(t, "Política o baja confianza requiere revisión humana", HitlReasonText(core.HitlReasonPolicyOrLowConfidence))
	assert.Equal(t, "Nivel de confianza límite requiere evaluación manual", HitlReasonText(core.HitlReasonBorderlineConfidence))
	assert.Equal(t, "agent_error:PolicyRAG", HitlReasonText("agent_error:PolicyRAG"))
}
