// Package orchestration runs the nine-stage fraud decision pipeline over
// a shared evaluation state, records a per-stage audit trail, and
// converts stage failures into safe escalations.
package orchestration

import (
	"github.com/itsneelabh/fraudmind/core"
)

// DebateState holds both debate positions.
type DebateState struct {
	ProFraud    core.DebatePosition `json:"pro_fraud"`
	ProCustomer core.DebatePosition `json:"pro_customer"`
}

// Evidence is the snapshot the evidence-aggregation stage takes of the
// accumulated signals, metrics, and citations.
type Evidence struct {
	Signals           []string                `json:"signals"`
	Metrics           map[string]interface{}  `json:"metrics"`
	CitationsInternal []core.CitationInternal `json:"citations_internal"`
	CitationsExternal []core.CitationExternal `json:"citations_external"`
}

// EvalState is the shared mutable state threaded through the pipeline.
// Stages only grow it: signals, metrics keys, citations, evidence, debate
// slots, and the decision fields. No stage removes information.
type EvalState struct {
	TransactionID string
	Consolidated  core.ConsolidatedTransaction

	Signals           []string
	Metrics           core.Metrics
	CitationsInternal []core.CitationInternal
	CitationsExternal []core.CitationExternal
	Evidence          *Evidence
	Debate            DebateState

	Decision      core.Decision // empty until the arbiter runs
	Confidence    float64
	HasConfidence bool

	ExplanationCustomer string
	ExplanationAudit    string
	AISummary           string

	Hitl core.HitlInfo

	// forcedReason records the first stage failure; once set, the
	// orchestrator keeps the decision pinned to ESCALATE_TO_HUMAN no
	// matter what later stages compute.
	forcedReason string
}

// NewEvalState creates the initial state for a pipeline run.
func NewEvalState(transactionID string, view core.ConsolidatedTransaction) *EvalState {
	return &EvalState{
		TransactionID:     transactionID,
		Consolidated:      view,
		Signals:           []string{},
		CitationsInternal: []core.CitationInternal{},
		CitationsExternal: []core.CitationExternal{},
	}
}

// HasSignal reports whether a signal was already recorded.
func (s *EvalState) HasSignal(name string) bool {
	for _, sig := range s.Signals {
		if sig == name {
			return true
		}
	}
	return false
}

// AddSignal records a signal. Stages append each signal at most once.
func (s *EvalState) AddSignal(name string) {
	s.Signals = append(s.Signals, name)
}

// SetConfidence records the arbiter's confidence.
func (s *EvalState) SetConfidence(v float64) {
	s.Confidence = v
	s.HasConfidence = true
}

// Response renders the state as the stable external decision shape.
func (s *EvalState) Response() *core.DecisionResponse {
	signals := make([]string, len(s.Signals))
	copy(signals, s.Signals)

	internal := make([]core.CitationInternal, len(s.CitationsInternal))
	copy(internal, s.CitationsInternal)

	external := make([]core.CitationExternal, len(s.CitationsExternal))
	copy(external, s.CitationsExternal)

	return &core.DecisionResponse{
		Decision:            s.Decision,
		Confidence:          s.Confidence,
		Signals:             signals,
		CitationsInternal:   internal,
		CitationsExternal:   external,
		ExplanationCustomer: s.ExplanationCustomer,
		ExplanationAudit:    s.ExplanationAudit,
		AISummary:           s.AISummary,
		Hitl:                s.Hitl,
	}
}
