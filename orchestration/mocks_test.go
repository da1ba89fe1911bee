package orchestration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/rag"
)

// In-memory storage fakes shared by the orchestration tests.

type memAuditSink struct {
	mu     sync.Mutex
	events map[string][]core.AuditEvent
	seqs   map[string]int

	failNextSeq bool
}

func newMemAuditSink() *memAuditSink {
	return &memAuditSink{
		events: make(map[string][]core.AuditEvent),
		seqs:   make(map[string]int),
	}
}

func (m *memAuditSink) Append(ctx context.Context, event core.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.TransactionID] = append(m.events[event.TransactionID], event)
	return nil
}

func (m *memAuditSink) GetEvents(ctx context.Context, transactionID string) ([]core.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]core.AuditEvent, len(m.events[transactionID]))
	copy(events, m.events[transactionID])
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (m *memAuditSink) NextSeq(ctx context.Context, transactionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNextSeq {
		return 0, fmt.Errorf("audit sink unavailable")
	}

	m.seqs[transactionID]++
	return m.seqs[transactionID], nil
}

func (m *memAuditSink) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]core.AuditEvent)
	m.seqs = make(map[string]int)
	return nil
}

type memHitlStore struct {
	mu    sync.Mutex
	cases map[string]core.HitlCase
}

func newMemHitlStore() *memHitlStore {
	return &memHitlStore{cases: make(map[string]core.HitlCase)}
}

func (m *memHitlStore) Create(ctx context.Context, hitlCase core.HitlCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cases {
		if c.TransactionID == hitlCase.TransactionID && c.Status == core.HitlStatusOpen {
			return fmt.Errorf("%w: transaction %s", core.ErrCaseAlreadyOpen, hitlCase.TransactionID)
		}
	}
	m.cases[hitlCase.CaseID] = hitlCase
	return nil
}

func (m *memHitlStore) GetByID(ctx context.Context, caseID string) (core.HitlCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[caseID]
	if !ok {
		return core.HitlCase{}, fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
	}
	return c, nil
}

func (m *memHitlStore) FindByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cases {
		if c.TransactionID == transactionID {
			return c, nil
		}
	}
	return core.HitlCase{}, fmt.Errorf("%w: transaction %s", core.ErrCaseNotFound, transactionID)
}

func (m *memHitlStore) FindOpenByTransaction(ctx context.Context, transactionID string) (core.HitlCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cases {
		if c.TransactionID == transactionID && c.Status == core.HitlStatusOpen {
			return c, nil
		}
	}
	return core.HitlCase{}, fmt.Errorf("%w: no open case for transaction %s", core.ErrCaseNotFound, transactionID)
}

func (m *memHitlStore) ListOpen(ctx context.Context) ([]core.HitlCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []core.HitlCase
	for _, c := range m.cases {
		if c.Status == core.HitlStatusOpen {
			open = append(open, c)
		}
	}
	return open, nil
}

func (m *memHitlStore) Resolve(ctx context.Context, caseID string, resolution core.HitlResolution, resolvedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[caseID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
	}
	if c.Status == core.HitlStatusResolved {
		return fmt.Errorf("%w: %s", core.ErrCaseAlreadyResolved, caseID)
	}

	c.Status = core.HitlStatusResolved
	c.Resolution = &resolution
	c.ResolvedAt = resolvedAt
	m.cases[caseID] = c
	return nil
}

func (m *memHitlStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases = make(map[string]core.HitlCase)
	return nil
}

func (m *memHitlStore) openCount(transactionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, c := range m.cases {
		if c.TransactionID == transactionID && c.Status == core.HitlStatusOpen {
			count++
		}
	}
	return count
}

type memTransactionStore struct {
	mu        sync.Mutex
	decisions map[string]core.DecisionResponse
}

func newMemTransactionStore() *memTransactionStore {
	return &memTransactionStore{decisions: make(map[string]core.DecisionResponse)}
}

func (m *memTransactionStore) SaveTransaction(ctx context.Context, txn core.Transaction) error {
	return nil
}

func (m *memTransactionStore) GetTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, transactionID)
}

func (m *memTransactionStore) SaveDecision(ctx context.Context, transactionID string, decision core.DecisionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[transactionID] = decision
	return nil
}

func (m *memTransactionStore) GetDecision(ctx context.Context, transactionID string) (core.DecisionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.decisions[transactionID]
	if !ok {
		return core.DecisionResponse{}, fmt.Errorf("%w: %s", core.ErrDecisionNotFound, transactionID)
	}
	return d, nil
}

func (m *memTransactionStore) SaveCustomerBehavior(ctx context.Context, customer core.CustomerBehavior) error {
	return nil
}

func (m *memTransactionStore) GetCustomerBehavior(ctx context.Context, customerID string) (core.CustomerBehavior, error) {
	return core.CustomerBehavior{}, fmt.Errorf("%w: %s", core.ErrCustomerNotFound, customerID)
}

func (m *memTransactionStore) ListSummaries(ctx context.Context) ([]core.TransactionSummary, error) {
	return nil, nil
}

func (m *memTransactionStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = make(map[string]core.DecisionResponse)
	return nil
}

// fakeRetriever returns canned documents or an error.
type fakeRetriever struct {
	docs []rag.Document
	err  error

	lastQuery string
	lastTopK  int
}

func (f *fakeRetriever) Query(ctx context.Context, text string, topK int) ([]rag.Document, error) {
	f.lastQuery = text
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// fakeSearcher returns canned external citations.
type fakeSearcher struct {
	results []core.CitationExternal
}

func (f *fakeSearcher) Search(ctx context.Context, query string) []core.CitationExternal {
	return f.results
}
