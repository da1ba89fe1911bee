package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/storage"
)

// HitlGateStage opens a human-review case when the decision requires
// one. Idempotent under retry: an already-open case for the transaction
// is reused.
type HitlGateStage struct {
	store  storage.HitlStore
	clock  func() time.Time
	logger core.Logger
}

func (s *HitlGateStage) Name() string { return "HITLGate" }

func newCaseID() string {
	return "HITL-" + strings.ToUpper(uuid.New().String()[:8])
}

func (s *HitlGateStage) Run(ctx context.Context, state *EvalState) error {
	if !state.Hitl.Required {
		return nil
	}

	existing, err := s.store.FindOpenByTransaction(ctx, state.TransactionID)
	if err == nil {
		s.logger.DebugWithContext(ctx, "Reusing open HITL case", map[string]interface{}{
			"transaction_id": state.TransactionID,
			"case_id":        existing.CaseID,
		})
		return nil
	}
	if !core.IsNotFound(err) {
		return fmt.Errorf("%w: hitl lookup: %v", core.ErrAgentExecution, err)
	}

	hitlCase := core.HitlCase{
		CaseID:        newCaseID(),
		TransactionID: state.TransactionID,
		Status:        core.HitlStatusOpen,
		Reason:        state.Hitl.Reason,
		CreatedAt:     s.clock().UTC().Format(time.RFC3339),
	}

	if err := s.store.Create(ctx, hitlCase); err != nil {
		// A concurrent run won the race; the invariant held
		if errors.Is(err, core.ErrCaseAlreadyOpen) {
			return nil
		}
		return fmt.Errorf("%w: hitl create: %v", core.ErrAgentExecution, err)
	}

	s.logger.InfoWithContext(ctx, "Created HITL case", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"case_id":        hitlCase.CaseID,
		"reason":         hitlCase.Reason,
	})
	return nil
}
