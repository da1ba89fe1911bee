package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/fraudmind/core"
)

// newTestRedisStore connects to the Redis named by REDIS_URL, skipping
// the test when none is available.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping remote-table contract tests")
	}

	store, err := NewRedisStore(redisURL, nil)
	require.NoError(t, err)

	require.NoError(t, store.Clear(context.Background()))
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = store.Close()
	})
	return store
}

func TestRedisStoreTransactionRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	txn := sampleTransaction("T-R1")
	require.NoError(t, store.SaveTransaction(ctx, txn))

	loaded, err := store.GetTransaction(ctx, "T-R1")
	require.NoError(t, err)
	assert.Equal(t, txn, loaded)

	_, err = store.GetTransaction(ctx, "T-MISSING")
	assert.ErrorIs(t, err, core.ErrTransactionNotFound)
}

func TestRedisStoreAuditSequences(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	seq1, err := store.NextSeq(ctx, "T-R2")
	require.NoError(t, err)
	assert.Equal(t, 1, seq1)

	seq2, err := store.NextSeq(ctx, "T-R2")
	require.NoError(t, err)
	assert.Equal(t, 2, seq2)

	require.NoError(t, store.Append(ctx, core.AuditEvent{
		TransactionID: "T-R2", RunID: "run-1", Seq: seq2,
		Timestamp: "2025-03-10T10:00:01Z", Agent: "BehavioralPattern",
	}))
	require.NoError(t, store.Append(ctx, core.AuditEvent{
		TransactionID: "T-R2", RunID: "run-1", Seq: seq1,
		Timestamp: "2025-03-10T10:00:00Z", Agent: "TransactionContext",
	}))

	events, err := store.GetEvents(ctx, "T-R2")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "TransactionContext", events[0].Agent)
	assert.Equal(t, "BehavioralPattern", events[1].Agent)
}

func TestRedisStoreHitlLifecycle(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleCase("HITL-R0000001", "T-R3")))

	err := store.Create(ctx, sampleCase("HITL-R0000002", "T-R3"))
	assert.ErrorIs(t, err, core.ErrCaseAlreadyOpen)

	open, err := store.FindOpenByTransaction(ctx, "T-R3")
	require.NoError(t, err)
	assert.Equal(t, "HITL-R0000001", open.CaseID)

	resolution := core.HitlResolution{Decision: core.DecisionBlock, Notes: "confirmado"}
	require.NoError(t, store.Resolve(ctx, "HITL-R0000001", resolution, "2025-03-10T12:00:00Z"))

	_, err = store.FindOpenByTransaction(ctx, "T-R3")
	assert.ErrorIs(t, err, core.ErrCaseNotFound)

	err = store.Resolve(ctx, "HITL-R0000001", resolution, "2025-03-10T13:00:00Z")
	assert.ErrorIs(t, err, core.ErrCaseAlreadyResolved)

	// A new case can open after resolution
	require.NoError(t, store.Create(ctx, sampleCase("HITL-R0000003", "T-R3")))
}
