package orchestration

import (
	"context"
	"time"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/prompts"
	"github.com/itsneelabh/fraudmind/rag"
	"github.com/itsneelabh/fraudmind/storage"
)

// Stage is one step of the pipeline. A stage mutates the evaluation
// state it is handed under exclusive ownership and may only grow it.
// A returned error is converted by the orchestrator into an
// ESCALATE_TO_HUMAN outcome; the pipeline never aborts mid-run.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *EvalState) error
}

// PolicyRetriever is the slice of the vector index the policy-RAG stage
// consumes.
type PolicyRetriever interface {
	Query(ctx context.Context, text string, topK int) ([]rag.Document, error)
}

// ThreatSearcher is the slice of the governed search service the
// threat-intel stage consumes. It never returns an error; provider
// failures degrade to an empty result list.
type ThreatSearcher interface {
	Search(ctx context.Context, query string) []core.CitationExternal
}

// Dependencies carries the collaborators a pipeline run needs.
// Retriever, Search, Audit, and Hitl are required; the rest are optional
// and default to no-ops (Model nil means the debate and explainability
// stages use their deterministic paths).
type Dependencies struct {
	Retriever    PolicyRetriever
	Search       ThreatSearcher
	Audit        storage.AuditSink
	Hitl         storage.HitlStore
	Transactions storage.TransactionStore

	Model   core.AIClient
	Prompts *prompts.Loader

	Logger    core.Logger
	Telemetry core.Telemetry
	Clock     func() time.Time
}

func (d *Dependencies) normalize() {
	if d.Logger == nil {
		d.Logger = &core.NoOpLogger{}
	}
	if cal, ok := d.Logger.(core.ComponentAwareLogger); ok {
		d.Logger = cal.WithComponent("engine/orchestration")
	}
	if d.Telemetry == nil {
		d.Telemetry = &core.NoOpTelemetry{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
}
