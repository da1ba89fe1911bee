package rag

import (
	"context"
	"fmt"

	"github.com/itsneelabh/fraudmind/core"
)

// PolicyDocument converts a fraud policy into its indexable document.
// Each policy becomes a single document with chunk_id "1" and
// doc_id "{policy_id}:{version}:{chunk_id}".
func PolicyDocument(policy core.FraudPolicy) Document {
	const chunkID = "1"
	return Document{
		ID:      fmt.Sprintf("%s:%s:%s", policy.PolicyID, policy.Version, chunkID),
		Content: policy.Rule,
		Metadata: map[string]string{
			"policy_id": policy.PolicyID,
			"version":   policy.Version,
			"chunk_id":  chunkID,
		},
	}
}

// IndexPolicies upserts the policies into the index and returns the
// number indexed.
func IndexPolicies(ctx context.Context, index *Index, policies []core.FraudPolicy) (int, error) {
	docs := make([]Document, len(policies))
	for i, p := range policies {
		docs[i] = PolicyDocument(p)
	}

	if err := index.Upsert(ctx, docs); err != nil {
		return 0, err
	}
	return len(policies), nil
}

// RebuildPolicies clears the collection and indexes the policies from
// scratch. This is the ingest pathway's rebuild operation.
func RebuildPolicies(ctx context.Context, index *Index, policies []core.FraudPolicy) (int, error) {
	if err := index.Clear(ctx); err != nil {
		return 0, err
	}
	return IndexPolicies(ctx, index, policies)
}
