package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/fraudmind/core"
)

func sampleTransaction(id string) core.Transaction {
	return core.Transaction{
		TransactionID: id,
		CustomerID:    "C-001",
		Amount:        1500,
		Currency:      "PEN",
		Country:       "PE",
		Channel:       "web",
		DeviceID:      "D-001",
		Timestamp:     "2025-03-10T10:00:00Z",
		MerchantID:    "M-001",
	}
}

func TestLocalTransactionStoreRoundTrip(t *testing.T) {
	store, err := NewLocalTransactionStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	txn := sampleTransaction("T-001")
	require.NoError(t, store.SaveTransaction(ctx, txn))

	loaded, err := store.GetTransaction(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, txn, loaded)

	_, err = store.GetTransaction(ctx, "T-MISSING")
	assert.ErrorIs(t, err, core.ErrTransactionNotFound)
}

func TestLocalTransactionStoreDecisions(t *testing.T) {
	store, err := NewLocalTransactionStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	decision := core.DecisionResponse{
		Decision:   core.DecisionChallenge,
		Confidence: 0.55,
		Signals:    []string{core.SignalAmountOutOfRange},
		Hitl:       core.HitlInfo{Required: true, Reason: core.HitlReasonBorderlineConfidence},
	}
	require.NoError(t, store.SaveDecision(ctx, "T-001", decision))

	loaded, err := store.GetDecision(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, decision.Decision, loaded.Decision)
	assert.Equal(t, decision.Confidence, loaded.Confidence)
	assert.Equal(t, decision.Hitl, loaded.Hitl)

	_, err = store.GetDecision(ctx, "T-MISSING")
	assert.ErrorIs(t, err, core.ErrDecisionNotFound)

	// The stored decision can be overwritten by a HITL resolution
	decision.Decision = core.DecisionApprove
	require.NoError(t, store.SaveDecision(ctx, "T-001", decision))
	loaded, err = store.GetDecision(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionApprove, loaded.Decision)
}

func TestLocalTransactionStoreCustomerBehavior(t *testing.T) {
	store, err := NewLocalTransactionStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	customer := core.CustomerBehavior{
		CustomerID:     "C-001",
		UsualAmountAvg: 500,
		UsualHours:     "08-20",
		UsualCountries: []string{"PE", "CL"},
		UsualDevices:   []string{"D-001"},
	}
	require.NoError(t, store.SaveCustomerBehavior(ctx, customer))

	loaded, err := store.GetCustomerBehavior(ctx, "C-001")
	require.NoError(t, err)
	assert.Equal(t, customer, loaded)

	_, err = store.GetCustomerBehavior(ctx, "C-MISSING")
	assert.ErrorIs(t, err, core.ErrCustomerNotFound)
}

func TestLocalTransactionStoreListSummaries(t *testing.T) {
	store, err := NewLocalTransactionStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.SaveTransaction(ctx, sampleTransaction("T-002")))
	require.NoError(t, store.SaveTransaction(ctx, sampleTransaction("T-001")))
	require.NoError(t, store.SaveDecision(ctx, "T-001", core.DecisionResponse{
		Decision:   core.DecisionApprove,
		Confidence: 0.1,
	}))

	summaries, err := store.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "T-001", summaries[0].TransactionID)
	assert.Equal(t, core.DecisionApprove, summaries[0].Decision)
	require.NotNil(t, summaries[0].Confidence)
	assert.Equal(t, 0.1, *summaries[0].Confidence)

	assert.Equal(t, "T-002", summaries[1].TransactionID)
	assert.Empty(t, summaries[1].Decision)
	assert.Nil(t, summaries[1].Confidence)
}

func TestLocalAuditSinkSequences(t *testing.T) {
	sink, err := NewLocalAuditSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// Sequences are reserved per transaction, starting at 1
	seq1, err := sink.NextSeq(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, 1, seq1)

	seq2, err := sink.NextSeq(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, 2, seq2)

	other, err := sink.NextSeq(ctx, "T-002")
	require.NoError(t, err)
	assert.Equal(t, 1, other)

	// Reservation survives even when no event was appended for a seq
	require.NoError(t, sink.Append(ctx, core.AuditEvent{TransactionID: "T-001", Seq: seq2, Agent: "Arbiter"}))
	seq3, err := sink.NextSeq(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, 3, seq3)
}

func TestLocalAuditSinkEventsSortedBySeq(t *testing.T) {
	sink, err := NewLocalAuditSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, core.AuditEvent{TransactionID: "T-001", Seq: 2, Agent: "BehavioralPattern"}))
	require.NoError(t, sink.Append(ctx, core.AuditEvent{TransactionID: "T-001", Seq: 1, Agent: "TransactionContext"}))

	events, err := sink.GetEvents(ctx, "T-001")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "TransactionContext", events[0].Agent)
	assert.Equal(t, "BehavioralPattern", events[1].Agent)

	// Unknown transactions have no events
	none, err := sink.GetEvents(ctx, "T-NONE")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalAuditSinkPersistsOutputJSON(t *testing.T) {
	sink, err := NewLocalAuditSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	event := core.AuditEvent{
		TransactionID: "T-001",
		RunID:         "run-1",
		Seq:           1,
		Timestamp:     "2025-03-10T10:00:00Z",
		DurationMS:    12.5,
		Agent:         "PolicyRAG",
		InputSummary:  "signals=1, metrics_keys=[amount_ratio]",
		OutputSummary: "signals=1, citations=2",
		OutputJSON: map[string]interface{}{
			"signals": []interface{}{core.SignalAmountOutOfRange},
		},
	}
	require.NoError(t, sink.Append(ctx, event))

	events, err := sink.GetEvents(ctx, "T-001")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.RunID, events[0].RunID)
	assert.Equal(t, event.DurationMS, events[0].DurationMS)
	assert.Equal(t, event.OutputJSON["signals"], events[0].OutputJSON["signals"])
}

func sampleCase(caseID, transactionID string) core.HitlCase {
	return core.HitlCase{
		CaseID:        caseID,
		TransactionID: transactionID,
		Status:        core.HitlStatusOpen,
		Reason:        core.HitlReasonPolicyOrLowConfidence,
		CreatedAt:     "2025-03-10T10:00:00Z",
	}
}

func TestLocalHitlStoreLifecycle(t *testing.T) {
	store, err := NewLocalHitlStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleCase("HITL-AAAA0001", "T-001")))

	// At most one open case per transaction
	err = store.Create(ctx, sampleCase("HITL-AAAA0002", "T-001"))
	assert.ErrorIs(t, err, core.ErrCaseAlreadyOpen)

	open, err := store.FindOpenByTransaction(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, "HITL-AAAA0001", open.CaseID)

	openCases, err := store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, openCases, 1)

	// Resolve transitions the case exactly once
	resolution := core.HitlResolution{Decision: core.DecisionApprove, Notes: "verificado"}
	require.NoError(t, store.Resolve(ctx, "HITL-AAAA0001", resolution, "2025-03-10T12:00:00Z"))

	resolved, err := store.GetByID(ctx, "HITL-AAAA0001")
	require.NoError(t, err)
	assert.Equal(t, core.HitlStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, resolution, *resolved.Resolution)
	assert.Equal(t, "2025-03-10T12:00:00Z", resolved.ResolvedAt)

	err = store.Resolve(ctx, "HITL-AAAA0001", resolution, "2025-03-10T13:00:00Z")
	assert.ErrorIs(t, err, core.ErrCaseAlreadyResolved)

	// Once resolved, a new case can be opened for the same transaction
	require.NoError(t, store.Create(ctx, sampleCase("HITL-AAAA0003", "T-001")))

	// FindByTransaction still sees the resolved case history
	found, err := store.FindByTransaction(ctx, "T-001")
	require.NoError(t, err)
	assert.Equal(t, "T-001", found.TransactionID)
}

func TestLocalHitlStoreNotFound(t *testing.T) {
	store, err := NewLocalHitlStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetByID(ctx, "HITL-MISSING")
	assert.ErrorIs(t, err, core.ErrCaseNotFound)

	_, err = store.FindOpenByTransaction(ctx, "T-NONE")
	assert.ErrorIs(t, err, core.ErrCaseNotFound)

	err = store.Resolve(ctx, "HITL-MISSING", core.HitlResolution{Decision: core.DecisionApprove}, "2025-03-10T12:00:00Z")
	assert.ErrorIs(t, err, core.ErrCaseNotFound)
}

func TestNewStoresLocalBackend(t *testing.T) {
	t.Setenv("FRAUDMIND_STORAGE_BACKEND", "")

	cfg, err := core.NewConfig(
		core.WithPersistencePaths(t.TempDir(), t.TempDir(), t.TempDir()),
	)
	require.NoError(t, err)

	stores, err := NewStores(cfg)
	require.NoError(t, err)
	assert.NotNil(t, stores.Transactions)
	assert.NotNil(t, stores.Audit)
	assert.NotNil(t, stores.Hitl)
}
