package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/fraudmind/core"
)

// Redis key layout (remote_table backend, single-table design):
//
//	{prefix}:transactions            hash  transaction_id -> Transaction JSON
//	{prefix}:customers               hash  customer_id -> CustomerBehavior JSON
//	{prefix}:decisions               hash  transaction_id -> DecisionResponse JSON
//	{prefix}:audit:{txn}             zset  score=seq, member=audit record with
//	                                       sort key ts#<ts>#seq#<6-digit>#agent#<name>
//	{prefix}:audit:seq:{txn}         counter reserved via INCR
//	{prefix}:hitl:case:{case_id}     HitlCase JSON
//	{prefix}:hitl:tx:{txn}           set of case ids (secondary index)
//	{prefix}:hitl:open:{txn}         case id, written with SETNX (open-case invariant)
//	{prefix}:hitl:open               set of open case ids (secondary index)
const defaultKeyPrefix = "fraudmind"

// RedisStore implements TransactionStore, AuditSink, and HitlStore on a
// Redis table. Sequence reservation uses INCR and the open-case invariant
// uses SETNX, so the guarantees hold across processes without file locks.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    core.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("engine/storage")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewEngineError("storage.NewRedisStore", "storage",
			fmt.Errorf("%w: invalid redis URL: %v", core.ErrInvalidConfiguration, err))
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, core.NewEngineError("storage.NewRedisStore", "storage", err)
	}

	logger.Info("Connected remote-table store", map[string]interface{}{
		"addr": opt.Addr,
	})

	return &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		logger:    logger,
	}, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(parts ...string) string {
	key := s.keyPrefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (s *RedisStore) hashSet(ctx context.Context, hash, field string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return core.NewEngineError("storage.hashSet", "storage", err)
	}
	if err := s.client.HSet(ctx, hash, field, data).Err(); err != nil {
		return core.NewEngineError("storage.hashSet", "storage", err)
	}
	return nil
}

func (s *RedisStore) hashGet(ctx context.Context, hash, field string, out interface{}, notFound error) error {
	data, err := s.client.HGet(ctx, hash, field).Result()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s", notFound, field)
	}
	if err != nil {
		return core.NewEngineError("storage.hashGet", "storage", err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return core.NewEngineError("storage.hashGet", "storage", err)
	}
	return nil
}

func (s *RedisStore) SaveTransaction(ctx context.Context, txn core.Transaction) error {
	return s.hashSet(ctx, s.key("transactions"), txn.TransactionID, txn)
}

func (s *RedisStore) GetTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	var txn core.Transaction
	err := s.hashGet(ctx, s.key("transactions"), transactionID, &txn, core.ErrTransactionNotFound)
	return txn, err
}

func (s *RedisStore) SaveDecision(ctx context.Context, transactionID string, decision core.DecisionResponse) error {
	return s.hashSet(ctx, s.key("decisions"), transactionID, decision)
}

func (s *RedisStore) GetDecision(ctx context.Context, transactionID string) (core.DecisionResponse, error) {
	var decision core.DecisionResponse
	err := s.hashGet(ctx, s.key("decisions"), transactionID, &decision, core.ErrDecisionNotFound)
	return decision, err
}

func (s *RedisStore) SaveCustomerBehavior(ctx context.Context, customer core.CustomerBehavior) error {
	return s.hashSet(ctx, s.key("customers"), customer.CustomerID, customer)
}

func (s *RedisStore) GetCustomerBehavior(ctx context.Context, customerID string) (core.CustomerBehavior, error) {
	var customer core.CustomerBehavior
	err := s.hashGet(ctx, s.key("customers"), customerID, &customer, core.ErrCustomerNotFound)
	return customer, err
}

func (s *RedisStore) ListSummaries(ctx context.Context) ([]core.TransactionSummary, error) {
	transactions, err := s.client.HGetAll(ctx, s.key("transactions")).Result()
	if err != nil {
		return nil, core.NewEngineError("storage.ListSummaries", "storage", err)
	}
	decisions, err := s.client.HGetAll(ctx, s.key("decisions")).Result()
	if err != nil {
		return nil, core.NewEngineError("storage.ListSummaries", "storage", err)
	}

	summaries := make([]core.TransactionSummary, 0, len(transactions))
	for id, raw := range transactions {
		var txn core.Transaction
		if err := json.Unmarshal([]byte(raw), &txn); err != nil {
			return nil, core.NewEngineError("storage.ListSummaries", "storage", err)
		}

		summary := core.TransactionSummary{
			TransactionID: txn.TransactionID,
			CustomerID:    txn.CustomerID,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Timestamp:     txn.Timestamp,
		}

		if rawDecision, ok := decisions[id]; ok {
			var decision core.DecisionResponse
			if err := json.Unmarshal([]byte(rawDecision), &decision); err != nil {
				return nil, core.NewEngineError("storage.ListSummaries", "storage", err)
			}
			summary.Decision = decision.Decision
			confidence := decision.Confidence
			summary.Confidence = &confidence
		}

		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].TransactionID < summaries[j].TransactionID
	})
	return summaries, nil
}

// auditRecord is one stored audit row: the sort key plus the event.
type auditRecord struct {
	SortKey string          `json:"sk"`
	Event   core.AuditEvent `json:"event"`
}

func auditSortKey(event core.AuditEvent) string {
	return fmt.Sprintf("ts#%s#seq#%06d#agent#%s", event.Timestamp, event.Seq, event.Agent)
}

func (s *RedisStore) Append(ctx context.Context, event core.AuditEvent) error {
	record := auditRecord{
		SortKey: auditSortKey(event),
		Event:   event,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return core.NewEngineError("audit.Append", "storage", err)
	}

	err = s.client.ZAdd(ctx, s.key("audit", event.TransactionID), &redis.Z{
		Score:  float64(event.Seq),
		Member: data,
	}).Err()
	if err != nil {
		return core.NewEngineError("audit.Append", "storage", err)
	}
	return nil
}

func (s *RedisStore) GetEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error) {
	members, err := s.client.ZRange(ctx, s.key("audit", transactionID), 0, -1).Result()
	if err != nil {
		return nil, core.NewEngineError("audit.GetEvents", "storage", err)
	}

	events := make([]core.AuditEvent, 0, len(members))
	for _, member := range members {
		var record auditRecord
		if err := json.Unmarshal([]byte(member), &record); err != nil {
			return nil, core.NewEngineError("audit.GetEvents", "storage", err)
		}
		events = append(events, record.Event)
	}
	return events, nil
}

func (s *RedisStore) NextSeq(ctx context.Context, transactionID string) (int, error) {
	seq, err := s.client.Incr(ctx, s.key("audit", "seq", transactionID)).Result()
	if err != nil {
		return 0, core.NewEngineError("audit.NextSeq", "storage", err)
	}
	return int(seq), nil
}

func (s *RedisStore) Create(ctx context.Context, hitlCase core.HitlCase) error {
	data, err := json.Marshal(hitlCase)
	if err != nil {
		return core.NewEngineError("hitl.Create", "storage", err)
	}

	// Conditional write enforces at most one OPEN case per transaction
	openKey := s.key("hitl", "open", hitlCase.TransactionID)
	claimed, err := s.client.SetNX(ctx, openKey, hitlCase.CaseID, 0).Result()
	if err != nil {
		return core.NewEngineError("hitl.Create", "storage", err)
	}
	if !claimed {
		existing, _ := s.client.Get(ctx, openKey).Result()
		return fmt.Errorf("%w: transaction %s has case %s", core.ErrCaseAlreadyOpen, hitlCase.TransactionID, existing)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("hitl", "case", hitlCase.CaseID), data, 0)
	pipe.SAdd(ctx, s.key("hitl", "tx", hitlCase.TransactionID), hitlCase.CaseID)
	pipe.SAdd(ctx, s.key("hitl", "open"), hitlCase.CaseID)
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewEngineError("hitl.Create", "storage", err)
	}
	return nil
}

func (s *RedisStore) getCase(ctx context.Context, caseID string) (core.HitlCase, error) {
	var hitlCase core.HitlCase
	data, err := s.client.Get(ctx, s.key("hitl", "case", caseID)).Result()
	if err == redis.Nil {
		return hitlCase, fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
	}
	if err != nil {
		return hitlCase, core.NewEngineError("hitl.get", "storage", err)
	}
	if err := json.Unmarshal([]byte(data), &hitlCase); err != nil {
		return hitlCase, core.NewEngineError("hitl.get", "storage", err)
	}
	return hitlCase, nil
}

func (s *RedisStore) GetByID(ctx context.Context, caseID string) (core.HitlCase, error) {
	return s.getCase(ctx, caseID)
}

func (s *RedisStore) FindByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error) {
	caseIDs, err := s.client.SMembers(ctx, s.key("hitl", "tx", transactionID)).Result()
	if err != nil {
		return core.HitlCase{}, core.NewEngineError("hitl.FindByTransaction", "storage", err)
	}
	if len(caseIDs) == 0 {
		return core.HitlCase{}, fmt.Errorf("%w: transaction %s", core.ErrCaseNotFound, transactionID)
	}

	sort.Strings(caseIDs)
	return s.getCase(ctx, caseIDs[0])
}

func (s *RedisStore) FindOpenByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error) {
	caseID, err := s.client.Get(ctx, s.key("hitl", "open", transactionID)).Result()
	if err == redis.Nil {
		return core.HitlCase{}, fmt.Errorf("%w: no open case for transaction %s", core.ErrCaseNotFound, transactionID)
	}
	if err != nil {
		return core.HitlCase{}, core.NewEngineError("hitl.FindOpenByTransaction", "storage", err)
	}
	return s.getCase(ctx, caseID)
}

func (s *RedisStore) ListOpen(ctx context.Context) ([]core.HitlCase, error) {
	caseIDs, err := s.client.SMembers(ctx, s.key("hitl", "open")).Result()
	if err != nil {
		return nil, core.NewEngineError("hitl.ListOpen", "storage", err)
	}
	sort.Strings(caseIDs)

	cases := make([]core.HitlCase, 0, len(caseIDs))
	for _, id := range caseIDs {
		hitlCase, err := s.getCase(ctx, id)
		if err != nil {
			return nil, err
		}
		cases = append(cases, hitlCase)
	}
	return cases, nil
}

func (s *RedisStore) Resolve(ctx context.Context, caseID string, resolution core.HitlResolution, resolvedAt string) error {
	caseKey := s.key("hitl", "case", caseID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, caseKey).Result()
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
		}
		if err != nil {
			return core.NewEngineError("hitl.Resolve", "storage", err)
		}

		var hitlCase core.HitlCase
		if err := json.Unmarshal([]byte(data), &hitlCase); err != nil {
			return core.NewEngineError("hitl.Resolve", "storage", err)
		}
		if hitlCase.Status == core.HitlStatusResolved {
			return fmt.Errorf("%w: %s", core.ErrCaseAlreadyResolved, caseID)
		}

		hitlCase.Status = core.HitlStatusResolved
		hitlCase.Resolution = &resolution
		hitlCase.ResolvedAt = resolvedAt

		updated, err := json.Marshal(hitlCase)
		if err != nil {
			return core.NewEngineError("hitl.Resolve", "storage", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, caseKey, updated, 0)
			pipe.SRem(ctx, s.key("hitl", "open"), caseID)
			pipe.Del(ctx, s.key("hitl", "open", hitlCase.TransactionID))
			return nil
		})
		if err != nil {
			return core.NewEngineError("hitl.Resolve", "storage", err)
		}
		return nil
	}, caseKey)
}

// Clear removes all engine keys. Administrative operation used by the
// ingest reset path and tests.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+":*", 100).Result()
		if err != nil {
			return core.NewEngineError("storage.Clear", "storage", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return core.NewEngineError("storage.Clear", "storage", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
