package storage

import (
	"fmt"

	"github.com/itsneelabh/fraudmind/core"
)

// Stores bundles the three persistence contracts a configured backend
// provides.
type Stores struct {
	Transactions TransactionStore
	Audit        AuditSink
	Hitl         HitlStore
}

// NewStores builds the storage backend selected by the configuration:
// "local" (JSON files under the persistence directory) or "remote_table"
// (Redis).
func NewStores(cfg *core.Config) (*Stores, error) {
	switch cfg.StorageBackend {
	case "local":
		transactions, err := NewLocalTransactionStore(cfg.PersistenceDir)
		if err != nil {
			return nil, err
		}
		audit, err := NewLocalAuditSink(cfg.PersistenceDir)
		if err != nil {
			return nil, err
		}
		hitl, err := NewLocalHitlStore(cfg.PersistenceDir)
		if err != nil {
			return nil, err
		}
		return &Stores{Transactions: transactions, Audit: audit, Hitl: hitl}, nil

	case "remote_table":
		store, err := NewRedisStore(cfg.RedisURL, cfg.Logger())
		if err != nil {
			return nil, err
		}
		return &Stores{Transactions: store, Audit: store, Hitl: store}, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", core.ErrInvalidConfiguration, cfg.StorageBackend)
	}
}
