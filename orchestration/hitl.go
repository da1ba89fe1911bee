package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/storage"
)

// Resolver applies a reviewer's verdict to an open HITL case: the case
// transitions to RESOLVED exactly once, an audit event records the manual
// action, and the transaction's stored decision is overwritten with the
// resolution.
type Resolver struct {
	hitl         storage.HitlStore
	audit        storage.AuditSink
	transactions storage.TransactionStore
	clock        func() time.Time
	logger       core.Logger
}

// NewResolver builds a resolver over the given stores.
func NewResolver(hitl storage.HitlStore, audit storage.AuditSink, transactions storage.TransactionStore, logger core.Logger) *Resolver {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("engine/orchestration")
	}
	return &Resolver{
		hitl:         hitl,
		audit:        audit,
		transactions: transactions,
		clock:        time.Now,
		logger:       logger,
	}
}

// Resolve closes the case with the reviewer's decision and returns the
// updated case.
func (r *Resolver) Resolve(ctx context.Context, caseID string, resolution core.HitlResolution) (core.HitlCase, error) {
	if !resolution.Decision.Valid() {
		return core.HitlCase{}, fmt.Errorf("%w: invalid resolution decision %q", core.ErrInvalidConfiguration, resolution.Decision)
	}

	hitlCase, err := r.hitl.GetByID(ctx, caseID)
	if err != nil {
		return core.HitlCase{}, err
	}

	resolvedAt := r.clock().UTC().Format(time.RFC3339)
	if err := r.hitl.Resolve(ctx, caseID, resolution, resolvedAt); err != nil {
		return core.HitlCase{}, err
	}

	r.recordResolution(ctx, hitlCase, resolution, resolvedAt)

	if err := r.overwriteDecision(ctx, hitlCase.TransactionID, resolution); err != nil {
		return core.HitlCase{}, err
	}

	r.logger.InfoWithContext(ctx, "Resolved HITL case", map[string]interface{}{
		"case_id":        caseID,
		"transaction_id": hitlCase.TransactionID,
		"decision":       string(resolution.Decision),
	})

	return r.hitl.GetByID(ctx, caseID)
}

func (r *Resolver) recordResolution(ctx context.Context, hitlCase core.HitlCase, resolution core.HitlResolution, resolvedAt string) {
	seq, err := r.audit.NextSeq(ctx, hitlCase.TransactionID)
	if err != nil {
		r.logger.ErrorWithContext(ctx, "Failed to reserve audit sequence for resolution", map[string]interface{}{
			"case_id": hitlCase.CaseID,
			"error":   err.Error(),
		})
		return
	}

	event := core.AuditEvent{
		TransactionID: hitlCase.TransactionID,
		RunID:         "hitl-manual",
		Seq:           seq,
		Timestamp:     resolvedAt,
		DurationMS:    0,
		Agent:         "HITL",
		InputSummary:  fmt.Sprintf("case_id=%s, original_reason=%s", hitlCase.CaseID, hitlCase.Reason),
		OutputSummary: "decision=" + string(resolution.Decision),
		OutputJSON: map[string]interface{}{
			"decision": string(resolution.Decision),
			"notes":    resolution.Notes,
		},
	}

	if err := r.audit.Append(ctx, event); err != nil {
		r.logger.ErrorWithContext(ctx, "Failed to append resolution audit event", map[string]interface{}{
			"case_id": hitlCase.CaseID,
			"error":   err.Error(),
		})
	}
}

// overwriteDecision replaces the stored decision with the reviewer's
// verdict, keeping the original evidence.
func (r *Resolver) overwriteDecision(ctx context.Context, transactionID string, resolution core.HitlResolution) error {
	if r.transactions == nil {
		return nil
	}

	original, err := r.transactions.GetDecision(ctx, transactionID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return err
	}

	updated := original
	updated.Decision = resolution.Decision
	updated.ExplanationCustomer = "Resolución manual: " + resolution.Notes
	updated.ExplanationAudit = fmt.Sprintf("%s Resolución HITL: %s - %s",
		original.ExplanationAudit, resolution.Decision, resolution.Notes)

	return r.transactions.SaveDecision(ctx, transactionID, updated)
}
