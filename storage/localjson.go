package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/itsneelabh/fraudmind/core"
)

// withFileLock runs fn while holding a cross-process lock for path.
// Local stores use one lock file per data file so concurrent engine
// processes serialize their read-modify-write cycles.
func withFileLock(path string, fn func() error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return core.NewEngineError("storage.lock", "storage", err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func readJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONFile(path string, in interface{}) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LocalTransactionStore is the file-backed TransactionStore: one JSON
// index file per entity kind under the store directory.
type LocalTransactionStore struct {
	transactionsFile string
	customersFile    string
	decisionsFile    string
}

// NewLocalTransactionStore creates the store directory and index files.
func NewLocalTransactionStore(dir string) (*LocalTransactionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewEngineError("storage.NewLocalTransactionStore", "storage", err)
	}
	return &LocalTransactionStore{
		transactionsFile: filepath.Join(dir, "transactions_index.json"),
		customersFile:    filepath.Join(dir, "customers_index.json"),
		decisionsFile:    filepath.Join(dir, "decisions_index.json"),
	}, nil
}

func (s *LocalTransactionStore) SaveTransaction(ctx context.Context, txn core.Transaction) error {
	return withFileLock(s.transactionsFile, func() error {
		data := map[string]core.Transaction{}
		if err := readJSONFile(s.transactionsFile, &data); err != nil {
			return core.NewEngineError("storage.SaveTransaction", "storage", err)
		}
		data[txn.TransactionID] = txn
		if err := writeJSONFile(s.transactionsFile, data); err != nil {
			return core.NewEngineError("storage.SaveTransaction", "storage", err)
		}
		return nil
	})
}

func (s *LocalTransactionStore) GetTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	var txn core.Transaction
	err := withFileLock(s.transactionsFile, func() error {
		data := map[string]core.Transaction{}
		if err := readJSONFile(s.transactionsFile, &data); err != nil {
			return core.NewEngineError("storage.GetTransaction", "storage", err)
		}
		found, ok := data[transactionID]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, transactionID)
		}
		txn = found
		return nil
	})
	return txn, err
}

func (s *LocalTransactionStore) SaveDecision(ctx context.Context, transactionID string, decision core.DecisionResponse) error {
	return withFileLock(s.decisionsFile, func() error {
		data := map[string]core.DecisionResponse{}
		if err := readJSONFile(s.decisionsFile, &data); err != nil {
			return core.NewEngineError("storage.SaveDecision", "storage", err)
		}
		data[transactionID] = decision
		if err := writeJSONFile(s.decisionsFile, data); err != nil {
			return core.NewEngineError("storage.SaveDecision", "storage", err)
		}
		return nil
	})
}

func (s *LocalTransactionStore) GetDecision(ctx context.Context, transactionID string) (core.DecisionResponse, error) {
	var decision core.DecisionResponse
	err := withFileLock(s.decisionsFile, func() error {
		data := map[string]core.DecisionResponse{}
		if err := readJSONFile(s.decisionsFile, &data); err != nil {
			return core.NewEngineError("storage.GetDecision", "storage", err)
		}
		found, ok := data[transactionID]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrDecisionNotFound, transactionID)
		}
		decision = found
		return nil
	})
	return decision, err
}

func (s *LocalTransactionStore) SaveCustomerBehavior(ctx context.Context, customer core.CustomerBehavior) error {
	return withFileLock(s.customersFile, func() error {
		data := map[string]core.CustomerBehavior{}
		if err := readJSONFile(s.customersFile, &data); err != nil {
			return core.NewEngineError("storage.SaveCustomerBehavior", "storage", err)
		}
		data[customer.CustomerID] = customer
		if err := writeJSONFile(s.customersFile, data); err != nil {
			return core.NewEngineError("storage.SaveCustomerBehavior", "storage", err)
		}
		return nil
	})
}

func (s *LocalTransactionStore) GetCustomerBehavior(ctx context.Context, customerID string) (core.CustomerBehavior, error) {
	var customer core.CustomerBehavior
	err := withFileLock(s.customersFile, func() error {
		data := map[string]core.CustomerBehavior{}
		if err := readJSONFile(s.customersFile, &data); err != nil {
			return core.NewEngineError("storage.GetCustomerBehavior", "storage", err)
		}
		found, ok := data[customerID]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrCustomerNotFound, customerID)
		}
		customer = found
		return nil
	})
	return customer, err
}

func (s *LocalTransactionStore) ListSummaries(ctx context.Context) ([]core.TransactionSummary, error) {
	transactions := map[string]core.Transaction{}
	decisions := map[string]core.DecisionResponse{}

	err := withFileLock(s.transactionsFile, func() error {
		return readJSONFile(s.transactionsFile, &transactions)
	})
	if err != nil {
		return nil, core.NewEngineError("storage.ListSummaries", "storage", err)
	}

	err = withFileLock(s.decisionsFile, func() error {
		return readJSONFile(s.decisionsFile, &decisions)
	})
	if err != nil {
		return nil, core.NewEngineError("storage.ListSummaries", "storage", err)
	}

	summaries := make([]core.TransactionSummary, 0, len(transactions))
	for id, txn := range transactions {
		summary := core.TransactionSummary{
			TransactionID: txn.TransactionID,
			CustomerID:    txn.CustomerID,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Timestamp:     txn.Timestamp,
		}
		if decision, ok := decisions[id]; ok {
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

func (s *LocalTransactionStore) Clear(ctx context.Context) error {
	for _, path := range []string{s.transactionsFile, s.customersFile, s.decisionsFile} {
		err := withFileLock(path, func() error {
			return writeJSONFile(path, map[string]interface{}{})
		})
		if err != nil {
			return core.NewEngineError("storage.Clear", "storage", err)
		}
	}
	return nil
}

// LocalAuditSink is the file-backed AuditSink: one JSONL file per
// transaction plus a counter file that reserves sequence numbers, so seq
// values stay strictly increasing even across overlapping runs.
type LocalAuditSink struct {
	auditDir string
}

// NewLocalAuditSink creates the audit directory.
func NewLocalAuditSink(dir string) (*LocalAuditSink, error) {
	auditDir := filepath.Join(dir, "audit")
	if err := os.MkdirAll(auditDir, 0o755); err != nil {
		return nil, core.NewEngineError("storage.NewLocalAuditSink", "storage", err)
	}
	return &LocalAuditSink{auditDir: auditDir}, nil
}

func (s *LocalAuditSink) eventsFile(transactionID string) string {
	return filepath.Join(s.auditDir, transactionID+".jsonl")
}

func (s *LocalAuditSink) seqFile(transactionID string) string {
	return filepath.Join(s.auditDir, transactionID+".seq")
}

func (s *LocalAuditSink) Append(ctx context.Context, event core.AuditEvent) error {
	path := s.eventsFile(event.TransactionID)
	return withFileLock(path, func() error {
		data, err := json.Marshal(event)
		if err != nil {
			return core.NewEngineError("audit.Append", "storage", err)
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return core.NewEngineError("audit.Append", "storage", err)
		}
		defer f.Close()

		if _, err := f.Write(append(data, '\n')); err != nil {
			return core.NewEngineError("audit.Append", "storage", err)
		}
		return nil
	})
}

func (s *LocalAuditSink) GetEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error) {
	path := s.eventsFile(transactionID)
	var events []core.AuditEvent

	err := withFileLock(path, func() error {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return core.NewEngineError("audit.GetEvents", "storage", err)
		}

		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var event core.AuditEvent
			if err := json.Unmarshal([]byte(line), &event); err != nil {
				return core.NewEngineError("audit.GetEvents", "storage", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (s *LocalAuditSink) NextSeq(ctx context.Context, transactionID string) (int, error) {
	path := s.seqFile(transactionID)
	var next int

	err := withFileLock(path, func() error {
		current := 0
		data, err := os.ReadFile(path)
		if err == nil {
			if n, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil {
				current = n
			}
		} else if !os.IsNotExist(err) {
			return core.NewEngineError("audit.NextSeq", "storage", err)
		}

		next = current + 1
		if err := os.WriteFile(path, []byte(strconv.Itoa(next)), 0o644); err != nil {
			return core.NewEngineError("audit.NextSeq", "storage", err)
		}
		return nil
	})
	return next, err
}

func (s *LocalAuditSink) Clear(ctx context.Context) error {
	patterns := []string{"*.jsonl", "*.seq"}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(s.auditDir, pattern))
		if err != nil {
			return core.NewEngineError("audit.Clear", "storage", err)
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return core.NewEngineError("audit.Clear", "storage", err)
			}
		}
	}
	return nil
}

// LocalHitlStore is the file-backed HitlStore: a single JSON file holding
// all cases, mutated under the file lock so the one-open-case invariant
// holds across processes.
type LocalHitlStore struct {
	casesFile string
}

// NewLocalHitlStore creates the store directory.
func NewLocalHitlStore(dir string) (*LocalHitlStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewEngineError("storage.NewLocalHitlStore", "storage", err)
	}
	return &LocalHitlStore{casesFile: filepath.Join(dir, "hitl_cases.json")}, nil
}

func (s *LocalHitlStore) readCases() ([]core.HitlCase, error) {
	var cases []core.HitlCase
	if err := readJSONFile(s.casesFile, &cases); err != nil {
		return nil, core.NewEngineError("hitl.read", "storage", err)
	}
	return cases, nil
}

func (s *LocalHitlStore) writeCases(cases []core.HitlCase) error {
	if err := writeJSONFile(s.casesFile, cases); err != nil {
		return core.NewEngineError("hitl.write", "storage", err)
	}
	return nil
}

func (s *LocalHitlStore) Create(ctx context.Context, hitlCase core.HitlCase) error {
	return withFileLock(s.casesFile, func() error {
		cases, err := s.readCases()
		if err != nil {
			return err
		}

		// Lookup-before-insert under the same lock
		for _, c := range cases {
			if c.TransactionID == hitlCase.TransactionID && c.Status == core.HitlStatusOpen {
				return fmt.Errorf("%w: transaction %s has case %s", core.ErrCaseAlreadyOpen, hitlCase.TransactionID, c.CaseID)
			}
		}

		cases = append(cases, hitlCase)
		return s.writeCases(cases)
	})
}

func (s *LocalHitlStore) GetByID(ctx context.Context, caseID string) (core.HitlCase, error) {
	var found core.HitlCase
	err := withFileLock(s.casesFile, func() error {
		cases, err := s.readCases()
		if err != nil {
			return err
		}
		for _, c := range cases {
			if c.CaseID == caseID {
				found = c
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
	})
	return found, err
}

func (s *LocalHitlStore) FindByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error) {
	var found core.HitlCase
	err := withFileLock(s.casesFile, func() error {
		cases, err := s.readCases()
		if err != nil {
			return err
		}
		for _, c := range cases {
			if c.TransactionID == transactionID {
				found = c
				return nil
			}
		}
		return fmt.Errorf("%w: transaction %s", core.ErrCaseNotFound, transactionID)
	})
	return found, err
}

func (s *LocalHitlStore) FindOpenByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error) {
	var found core.HitlCase
	err := withFileLock(s.casesFile, func() error {
		cases, err := s.readCases()
		if err != nil {
			return err
		}
		for _, c := range cases {
			if c.TransactionID == transactionID && c.Status == core.HitlStatusOpen {
				found = c
				return nil
			}
		}
		return fmt.Errorf("%w: no open case for transaction %s", core.ErrCaseNotFound, transactionID)
	})
	return found, err
}

func (s *LocalHitlStore) ListOpen(ctx context.Context) ([]core.HitlCase, error) {
	var open []core.HitlCase
	err := withFileLock(s.casesFile, func() error {
		cases, err := s.readCases()
		if err != nil {
			return err
		}
		for _, c := range cases {
			if c.Status == core.HitlStatusOpen {
				open = append(open, c)
			}
		}
		return nil
	})
	return open, err
}

func (s *LocalHitlStore) Resolve(ctx context.Context, caseID string, resolution core.HitlResolution, resolvedAt string) error {
	return withFileLock(s.casesFile, func() error {
		cases, err := s.readCases()
		if err != nil {
			return err
		}

		for i, c := range cases {
			if c.CaseID != caseID {
				continue
			}
			if c.Status == core.HitlStatusResolved {
				return fmt.Errorf("%w: %s", core.ErrCaseAlreadyResolved, caseID)
			}

			cases[i].Status = core.HitlStatusResolved
			cases[i].Resolution = &resolution
			cases[i].ResolvedAt = resolvedAt
			return s.writeCases(cases)
		}

		return fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
	})
}

func (s *LocalHitlStore) Clear(ctx context.Context) error {
	return withFileLock(s.casesFile, func() error {
		return s.writeCases([]core.HitlCase{})
	})
}
