package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/fraudmind/core"
)

func newTestIndex(t *testing.T, dir string) *Index {
	t.Helper()
	index, err := NewIndex(dir, "policies", NewMockEmbedder(64), nil)
	require.NoError(t, err)
	return index
}

func samplePolicies() []core.FraudPolicy {
	return []core.FraudPolicy{
		{PolicyID: "POL-001", Version: "1.0", Rule: "Montos mayores a 3x el promedio → CHALLENGE"},
		{PolicyID: "POL-002", Version: "1.0", Rule: "Coincidencia con alerta externa y monto elevado → BLOCK"},
		{PolicyID: "POL-003", Version: "2.1", Rule: "País y dispositivo nuevos simultáneamente → ESCALATE_TO_HUMAN"},
	}
}

func TestIndexPoliciesAndQuery(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, t.TempDir())

	count, err := IndexPolicies(ctx, index, samplePolicies())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, index.Count())

	docs, err := index.Query(ctx, "monto elevado fuera de rango", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	for _, doc := range docs {
		assert.NotEmpty(t, doc.Metadata["policy_id"])
		assert.Equal(t, "1", doc.Metadata["chunk_id"])
	}
}

func TestIndexQueryIsDeterministic(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, t.TempDir())

	_, err := IndexPolicies(ctx, index, samplePolicies())
	require.NoError(t, err)

	first, err := index.Query(ctx, "dispositivo nuevo", 3)
	require.NoError(t, err)
	second, err := index.Query(ctx, "dispositivo nuevo", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	index := newTestIndex(t, dir)
	_, err := IndexPolicies(ctx, index, samplePolicies())
	require.NoError(t, err)

	reopened := newTestIndex(t, dir)
	assert.Equal(t, 3, reopened.Count())

	docs, err := reopened.Query(ctx, "alerta externa", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestIndexRebuild(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, t.TempDir())

	_, err := IndexPolicies(ctx, index, samplePolicies())
	require.NoError(t, err)

	// Rebuild with a smaller policy set replaces the collection
	count, err := RebuildPolicies(ctx, index, samplePolicies()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, index.Count())
}

func TestIndexClear(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, t.TempDir())

	_, err := IndexPolicies(ctx, index, samplePolicies())
	require.NoError(t, err)

	require.NoError(t, index.Clear(ctx))
	assert.Equal(t, 0, index.Count())

	docs, err := index.Query(ctx, "cualquier consulta", 2)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPolicyDocumentID(t *testing.T) {
	doc := PolicyDocument(core.FraudPolicy{PolicyID: "POL-010", Version: "3.2", Rule: "regla"})

	assert.Equal(t, "POL-010:3.2:1", doc.ID)
	assert.Equal(t, "regla", doc.Content)
	assert.Equal(t, map[string]string{
		"policy_id": "POL-010",
		"version":   "3.2",
		"chunk_id":  "1",
	}, doc.Metadata)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}
