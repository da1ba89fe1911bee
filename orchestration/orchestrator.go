package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/telemetry"
)

// Engine sequences the pipeline stages over a shared evaluation state.
// Each stage execution is wrapped with input/output summaries, monotonic
// timing, and an audit event; a stage failure is converted into a forced
// ESCALATE_TO_HUMAN outcome that later stages cannot downgrade.
//
// An Engine is safe for concurrent use: every RunDecision invocation
// carries its own state and run id.
type Engine struct {
	deps   Dependencies
	stages []Stage
}

// NewEngine builds the engine with the nine pipeline stages plus the
// HITL gate, in fixed order.
func NewEngine(deps Dependencies) *Engine {
	deps.normalize()

	return &Engine{
		deps: deps,
		stages: []Stage{
			&ContextStage{logger: deps.Logger},
			&BehaviorStage{logger: deps.Logger},
			&PolicyRAGStage{retriever: deps.Retriever, logger: deps.Logger},
			&ThreatIntelStage{search: deps.Search, logger: deps.Logger},
			&EvidenceStage{logger: deps.Logger},
			&DebateProFraudStage{model: deps.Model, prompts: deps.Prompts, logger: deps.Logger},
			&DebateProCustomerStage{model: deps.Model, prompts: deps.Prompts, logger: deps.Logger},
			&ArbiterStage{logger: deps.Logger},
			&ExplainabilityStage{audit: deps.Audit, model: deps.Model, prompts: deps.Prompts, logger: deps.Logger},
			&HitlGateStage{store: deps.Hitl, clock: deps.Clock, logger: deps.Logger},
		},
	}
}

// RunDecision executes the full pipeline for a consolidated transaction
// and returns the decision. The decision is persisted through the
// transaction store when one is configured. The pipeline never aborts
// mid-run; any stage failure yields an ESCALATE_TO_HUMAN decision with a
// recorded error event.
func (e *Engine) RunDecision(ctx context.Context, transactionID string, view core.ConsolidatedTransaction) (*core.DecisionResponse, error) {
	runID := uuid.New().String()
	state := NewEvalState(transactionID, view)

	e.deps.Logger.InfoWithContext(ctx, "Starting decision run", map[string]interface{}{
		"transaction_id": transactionID,
		"run_id":         runID,
	})

	for _, stage := range e.stages {
		e.runStage(ctx, runID, stage, state)
	}

	response := state.Response()

	telemetry.Counter("decision.total",
		"module", telemetry.ModuleOrchestration,
		"decision", string(response.Decision),
	)
	telemetry.Histogram("decision.confidence", response.Confidence,
		"module", telemetry.ModuleOrchestration,
	)

	if e.deps.Transactions != nil {
		if err := e.deps.Transactions.SaveDecision(ctx, transactionID, *response); err != nil {
			return response, core.NewEngineError("engine.RunDecision", "storage", err)
		}
	}

	e.deps.Logger.InfoWithContext(ctx, "Decision run completed", map[string]interface{}{
		"transaction_id": transactionID,
		"run_id":         runID,
		"decision":       string(response.Decision),
		"confidence":     response.Confidence,
		"hitl_required":  response.Hitl.Required,
	})

	return response, nil
}

// forceEscalation pins the outcome after a stage failure. Re-applied
// after every subsequent stage so the arbiter cannot downgrade it.
func forceEscalation(state *EvalState) {
	state.Decision = core.DecisionEscalate
	state.Hitl = core.HitlInfo{Required: true, Reason: state.forcedReason}
}

func (e *Engine) runStage(ctx context.Context, runID string, stage Stage, state *EvalState) {
	name := stage.Name()

	seq, seqErr := e.deps.Audit.NextSeq(ctx, state.TransactionID)
	if seqErr != nil {
		e.deps.Logger.ErrorWithContext(ctx, "Failed to reserve audit sequence", map[string]interface{}{
			"transaction_id": state.TransactionID,
			"agent":          name,
			"error":          seqErr.Error(),
		})
		if state.forcedReason == "" {
			state.forcedReason = "agent_error:" + name
		}
		forceEscalation(state)
		return
	}

	inputSummary := fmt.Sprintf("signals=%d, metrics_keys=%v", len(state.Signals), state.Metrics.Keys())

	spanCtx, span := e.deps.Telemetry.StartSpan(ctx, "stage."+name)
	span.SetAttribute("transaction_id", state.TransactionID)
	span.SetAttribute("run_id", runID)

	start := time.Now()
	err := stage.Run(spanCtx, state)
	durationMS := float64(time.Since(start).Microseconds()) / 1000.0

	telemetry.Duration("stage.duration_ms", start,
		"module", telemetry.ModuleOrchestration,
		"agent", name,
	)

	if err != nil {
		span.RecordError(err)
		span.End()

		e.deps.Logger.ErrorWithContext(ctx, "Stage failed", map[string]interface{}{
			"transaction_id": state.TransactionID,
			"run_id":         runID,
			"agent":          name,
			"error":          err.Error(),
		})

		event := core.AuditEvent{
			TransactionID: state.TransactionID,
			RunID:         runID,
			Seq:           seq,
			Timestamp:     e.deps.Clock().UTC().Format(time.RFC3339),
			DurationMS:    durationMS,
			Agent:         name + "_error",
			InputSummary:  inputSummary,
			OutputSummary: "Error: " + err.Error(),
			OutputJSON:    map[string]interface{}{"error": err.Error()},
		}
		e.appendEvent(ctx, event)

		if state.forcedReason == "" {
			state.forcedReason = "agent_error:" + name
		}
		forceEscalation(state)
		return
	}

	span.End()

	// Once a stage has failed, subsequent stages still run for their
	// audit value, but the forced escalation stays in effect
	if state.forcedReason != "" {
		forceEscalation(state)
	}

	event := core.AuditEvent{
		TransactionID: state.TransactionID,
		RunID:         runID,
		Seq:           seq,
		Timestamp:     e.deps.Clock().UTC().Format(time.RFC3339),
		DurationMS:    durationMS,
		Agent:         name,
		InputSummary:  inputSummary,
		OutputSummary: e.outputSummary(name, state),
		OutputJSON:    outputSnapshot(state),
	}
	e.appendEvent(ctx, event)
}

func (e *Engine) outputSummary(name string, state *EvalState) string {
	summary := fmt.Sprintf("signals=%d", len(state.Signals))

	if name == "PolicyRAG" {
		summary += fmt.Sprintf(", citations=%d", len(state.CitationsInternal))
	}
	if name == "ThreatIntel" {
		summary += fmt.Sprintf(", external_citations=%d", len(state.CitationsExternal))
	}
	if state.Decision != "" {
		summary += ", decision=" + string(state.Decision)
	}
	if state.HasConfidence {
		summary += fmt.Sprintf(", confidence=%.2f", state.Confidence)
	}
	return summary
}

// outputSnapshot renders the structured state snapshot recorded with
// each audit event.
func outputSnapshot(state *EvalState) map[string]interface{} {
	snapshot := map[string]interface{}{
		"signals":            state.Signals,
		"metrics":            state.Metrics.Map(),
		"citations_internal": state.CitationsInternal,
		"citations_external": state.CitationsExternal,
	}
	if state.Decision != "" {
		snapshot["decision"] = string(state.Decision)
	}
	if state.HasConfidence {
		snapshot["confidence"] = state.Confidence
	}
	return snapshot
}

func (e *Engine) appendEvent(ctx context.Context, event core.AuditEvent) {
	if err := e.deps.Audit.Append(ctx, event); err != nil {
		e.deps.Logger.ErrorWithContext(ctx, "Failed to append audit event", map[string]interface{}{
			"transaction_id": event.TransactionID,
			"agent":          event.Agent,
			"seq":            event.Seq,
			"error":          err.Error(),
		})
	}
}
