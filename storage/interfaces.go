// Package storage defines the persistence contracts the decision engine
// consumes (transactions and decisions, the append-only audit trail, and
// HITL cases) plus a file-backed and a Redis-backed implementation.
package storage

import (
	"context"

	"github.com/itsneelabh/fraudmind/core"
)

// TransactionStore persists transactions, customer behavior profiles, and
// decisions. Lookups return core.ErrTransactionNotFound,
// core.ErrCustomerNotFound, or core.ErrDecisionNotFound (wrapped) when
// the entity does not exist.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn core.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (core.Transaction, error)
	SaveDecision(ctx context.Context, transactionID string, decision core.DecisionResponse) error
	GetDecision(ctx context.Context, transactionID string) (core.DecisionResponse, error)
	SaveCustomerBehavior(ctx context.Context, customer core.CustomerBehavior) error
	GetCustomerBehavior(ctx context.Context, customerID string) (core.CustomerBehavior, error)
	ListSummaries(ctx context.Context) ([]core.TransactionSummary, error)
	Clear(ctx context.Context) error
}

// AuditSink is the append-only per-transaction event log.
//
// NextSeq reserves and returns the next sequence number for a
// transaction: an integer strictly greater than any value it has ever
// returned for that transaction, even across overlapping runs and
// process restarts.
type AuditSink interface {
	Append(ctx context.Context, event core.AuditEvent) error
	GetEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error)
	NextSeq(ctx context.Context, transactionID string) (int, error)
	Clear(ctx context.Context) error
}

// HitlStore persists human-in-the-loop cases. Create enforces the
// at-most-one-OPEN-case-per-transaction invariant and returns
// core.ErrCaseAlreadyOpen when violated. Resolve transitions a case to
// RESOLVED exactly once; further calls return core.ErrCaseAlreadyResolved.
type HitlStore interface {
	Create(ctx context.Context, hitlCase core.HitlCase) error
	GetByID(ctx context.Context, caseID string) (core.HitlCase, error)
	FindByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error)
	FindOpenByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error)
	ListOpen(ctx context.Context) ([]core.HitlCase, error)
	Resolve(ctx context.Context, caseID string, resolution core.HitlResolution, resolvedAt string) error
	Clear(ctx context.Context) error
}
