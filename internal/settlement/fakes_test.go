package settlement_test

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/gateway"
	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/settlement"
)

// fakeStore is an in-memory ledger with the same compare-and-set semantics
// as the SQL store, guarded by one mutex so concurrent callers serialize the
// way a storage transaction would.
type fakeStore struct {
	mu           sync.Mutex
	txns         map[string]*domain.Transaction
	txnTickets   map[uuid.UUID][]uuid.UUID
	tickets      map[uuid.UUID]*domain.Ticket
	events       map[uuid.UUID]*domain.Event
	categories   map[uuid.UUID]*domain.TicketCategory
	wallets      map[uuid.UUID]int64
	adminBalance int64
	outbox       []settlement.SettlementEvent
	relistErrs   int // RelistTicket fails this many times before succeeding
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txns:       map[string]*domain.Transaction{},
		txnTickets: map[uuid.UUID][]uuid.UUID{},
		tickets:    map[uuid.UUID]*domain.Ticket{},
		events:     map[uuid.UUID]*domain.Event{},
		categories: map[uuid.UUID]*domain.TicketCategory{},
		wallets:    map[uuid.UUID]int64{},
	}
}

func (s *fakeStore) LockForStatus(ctx context.Context, reference string, target domain.TxStatus) (*domain.LockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[reference]
	if !ok {
		return nil, errors.Mark(errors.Newf("transaction %s", reference), domain.ErrNotFound)
	}
	if txn.Status == target || txn.Status != domain.TxPending {
		return &domain.LockResult{AlreadyProcessed: true, Txn: *txn}, nil
	}
	txn.Status = target
	return &domain.LockResult{AlreadyProcessed: false, Txn: *txn}, nil
}

func (s *fakeStore) TransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[reference]
	if !ok {
		return nil, errors.Mark(errors.Newf("transaction %s", reference), domain.ErrNotFound)
	}
	cp := *txn
	return &cp, nil
}

func (s *fakeStore) TicketIDsForTransaction(ctx context.Context, txnID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.txnTickets[txnID]...), nil
}

func (s *fakeStore) TicketsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, id := range ids {
		if t, ok := s.tickets[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) EventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("event %s", id), domain.ErrNotFound)
	}
	cp := *ev
	return &cp, nil
}

func (s *fakeStore) StaleResales(ctx context.Context, cutoff time.Time) ([]settlement.StaleResale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []settlement.StaleResale
	for _, txn := range s.txns {
		if txn.Type != domain.TxResale || txn.Status != domain.TxPending || !txn.CreatedAt.Before(cutoff) {
			continue
		}
		sr := settlement.StaleResale{Txn: *txn}
		for _, id := range s.txnTickets[txn.ID] {
			if t, ok := s.tickets[id]; ok {
				sr.Tickets = append(sr.Tickets, *t)
			}
		}
		out = append(out, sr)
	}
	return out, nil
}

// WithTx snapshots the mutable state so an error from fn rolls everything
// back, the way the SQL store's transaction would.
func (s *fakeStore) WithTx(ctx context.Context, fn func(settlement.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txnSnap := make(map[string]domain.Transaction, len(s.txns))
	for k, v := range s.txns {
		txnSnap[k] = *v
	}
	ticketSnap := make(map[uuid.UUID]domain.Ticket, len(s.tickets))
	for k, v := range s.tickets {
		ticketSnap[k] = *v
	}
	catSnap := make(map[uuid.UUID]domain.TicketCategory, len(s.categories))
	for k, v := range s.categories {
		catSnap[k] = *v
	}
	walletSnap := make(map[uuid.UUID]int64, len(s.wallets))
	for k, v := range s.wallets {
		walletSnap[k] = v
	}
	adminSnap := s.adminBalance
	outboxLen := len(s.outbox)

	if err := fn(s); err != nil {
		for k, v := range txnSnap {
			cp := v
			s.txns[k] = &cp
		}
		for k, v := range ticketSnap {
			cp := v
			s.tickets[k] = &cp
		}
		for k, v := range catSnap {
			cp := v
			s.categories[k] = &cp
		}
		s.wallets = walletSnap
		s.adminBalance = adminSnap
		s.outbox = s.outbox[:outboxLen]
		return err
	}
	return nil
}

func (s *fakeStore) MintTickets(ctx context.Context, categoryID uuid.UUID, n int) error {
	cat, ok := s.categories[categoryID]
	if !ok {
		return errors.Mark(errors.Newf("category %s", categoryID), domain.ErrNotFound)
	}
	if cat.Minted+n > cat.MaxTickets {
		return errors.Mark(errors.Newf("category %s over cap", categoryID), domain.ErrInvalidState)
	}
	cat.Minted += n
	return nil
}

func (s *fakeStore) CreditWallet(ctx context.Context, userID uuid.UUID, amount int64) error {
	s.wallets[userID] += amount
	return nil
}

func (s *fakeStore) CreditAdminWallet(ctx context.Context, amount int64) error {
	s.adminBalance += amount
	return nil
}

func (s *fakeStore) TransferTicket(ctx context.Context, xfer settlement.TicketTransfer) error {
	t, ok := s.tickets[xfer.TicketID]
	if !ok {
		return errors.Mark(errors.Newf("ticket %s", xfer.TicketID), domain.ErrNotFound)
	}
	prev := t.OwnerID
	t.SoldTo = &prev
	t.OwnerID = xfer.NewOwnerID
	t.Code = xfer.NewCode
	t.IsListed = false
	t.ResalePrice = nil
	t.ResaleCount++
	t.ResaleCommission = xfer.Commission
	return nil
}

func (s *fakeStore) RelistTicket(ctx context.Context, ticketID uuid.UUID) error {
	if s.relistErrs > 0 {
		s.relistErrs--
		return errors.New("relist write rejected")
	}
	if t, ok := s.tickets[ticketID]; ok && t.ResalePrice != nil {
		t.IsListed = true
	}
	return nil
}

func (s *fakeStore) FailPendingTransaction(ctx context.Context, txnID uuid.UUID) (bool, error) {
	for _, txn := range s.txns {
		if txn.ID == txnID {
			if txn.Status != domain.TxPending {
				return false, nil
			}
			txn.Status = domain.TxFailed
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) InsertSettlementEvent(ctx context.Context, ev settlement.SettlementEvent) error {
	for _, existing := range s.outbox {
		if existing.DedupeKey == ev.DedupeKey {
			return nil
		}
	}
	s.outbox = append(s.outbox, ev)
	return nil
}

func (s *fakeStore) walletBalance(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[userID]
}

func (s *fakeStore) admin() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminBalance
}

// fakePayin satisfies gateway.Client with a canned verify result.
type fakePayin struct {
	result *gateway.VerifyResult
	err    error
}

func (f *fakePayin) Provider() gateway.Provider { return gateway.ProviderPaystack }

func (f *fakePayin) VerifyTransaction(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Reference = reference
	return &r, nil
}

func (f *fakePayin) InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.PayoutResponse, error) {
	return &gateway.PayoutResponse{Reference: req.Reference, Status: "success"}, nil
}

// fakePayout records payout requests and can be told to fail from the Nth
// call on.
type fakePayout struct {
	mu        sync.Mutex
	requests  []gateway.PayoutRequest
	failAfter int // fail once this many payouts have succeeded; 0 disables
}

func (f *fakePayout) InitiatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.PayoutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.requests) >= f.failAfter {
		return nil, errors.Mark(errors.New("disburse rejected"), domain.ErrGatewayFailure)
	}
	f.requests = append(f.requests, req)
	return &gateway.PayoutResponse{Reference: req.Reference, Status: "success"}, nil
}

type fakeCache struct {
	mu   sync.Mutex
	tags []string
}

func (f *fakeCache) Invalidate(ctx context.Context, tags []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tags...)
}

func (f *fakeCache) has(tag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// fakeNotifier signals on done so tests can wait for the fire-and-forget
// dispatch goroutine.
type fakeNotifier struct {
	mu        sync.Mutex
	purchases []settlement.PurchaseNotice
	resales   []settlement.ResaleNotice
	err       error
	done      chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 16)}
}

func (f *fakeNotifier) PurchaseConfirmed(ctx context.Context, n settlement.PurchaseNotice) error {
	f.mu.Lock()
	f.purchases = append(f.purchases, n)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakeNotifier) ResaleConfirmed(ctx context.Context, n settlement.ResaleNotice) error {
	f.mu.Lock()
	f.resales = append(f.resales, n)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakeNotifier) wait(timeout time.Duration) bool {
	select {
	case <-f.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

type fakeAudit struct {
	mu      sync.Mutex
	payouts []settlement.PayoutAudit
	results map[string]string
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{results: map[string]string{}}
}

func (f *fakeAudit) RecordPayout(ctx context.Context, rec settlement.PayoutAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts = append(f.payouts, rec)
	return nil
}

func (f *fakeAudit) RecordPayoutResult(ctx context.Context, reference, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[reference] = status
	return nil
}

type testEnv struct {
	store    *fakeStore
	payin    *fakePayin
	payout   *fakePayout
	cache    *fakeCache
	notifier *fakeNotifier
	audit    *fakeAudit
	engine   *settlement.Engine
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    newFakeStore(),
		payin:    &fakePayin{result: &gateway.VerifyResult{Status: "success", Currency: "NGN"}},
		payout:   &fakePayout{},
		cache:    &fakeCache{},
		notifier: newFakeNotifier(),
		audit:    newFakeAudit(),
	}
	registry := gateway.NewRegistry()
	registry.Register(env.payin)
	registry.Register(gateway.NewKorapay("", "whsec"))
	env.engine = settlement.NewEngine(env.store, registry, env.payout, env.cache, env.notifier, env.audit,
		observability.NewLogger(), "NGN")
	return env
}

func seedPurchase(s *fakeStore, reference string, amount int64, feeBps int32, ticketCount int) (domain.Transaction, domain.Event, uuid.UUID) {
	eventID := uuid.New()
	organizerID := uuid.New()
	buyerID := uuid.New()
	categoryID := uuid.New()

	event := domain.Event{ID: eventID, OrganizerID: organizerID, PrimaryFeeBps: feeBps, ResaleFeeBps: 350, RoyaltyFeeBps: 1000}
	s.events[eventID] = &event
	s.categories[categoryID] = &domain.TicketCategory{ID: categoryID, EventID: eventID, MaxTickets: 100}
	s.wallets[organizerID] = 0

	txn := domain.Transaction{
		ID:        uuid.New(),
		Reference: reference,
		Type:      domain.TxPurchase,
		Status:    domain.TxPending,
		Amount:    amount,
		UserID:    buyerID,
		EventID:   &eventID,
		CreatedAt: time.Now(),
	}
	s.txns[reference] = &txn

	for i := 0; i < ticketCount; i++ {
		t := domain.Ticket{ID: uuid.New(), Code: "TKT-SEED", OwnerID: buyerID, EventID: eventID, CategoryID: categoryID}
		s.tickets[t.ID] = &t
		s.txnTickets[txn.ID] = append(s.txnTickets[txn.ID], t.ID)
	}
	return txn, event, categoryID
}

func seedResale(s *fakeStore, reference string, price int64) (domain.Transaction, domain.Event, domain.Ticket) {
	eventID := uuid.New()
	organizerID := uuid.New()
	sellerID := uuid.New()
	buyerID := uuid.New()
	categoryID := uuid.New()

	event := domain.Event{ID: eventID, OrganizerID: organizerID, PrimaryFeeBps: 500, ResaleFeeBps: 350, RoyaltyFeeBps: 1000}
	s.events[eventID] = &event
	s.wallets[organizerID] = 0
	s.wallets[sellerID] = 0

	p := price
	ticket := domain.Ticket{
		ID:              uuid.New(),
		Code:            "TKT-OLD",
		OwnerID:         sellerID,
		EventID:         eventID,
		CategoryID:      categoryID,
		IsListed:        true,
		ResalePrice:     &p,
		PayoutBankCode:  "058",
		PayoutAccountNo: "0123456789",
		PayoutAccountNm: "Seller Person",
	}
	s.tickets[ticket.ID] = &ticket

	txn := domain.Transaction{
		ID:        uuid.New(),
		Reference: reference,
		Type:      domain.TxResale,
		Status:    domain.TxPending,
		Amount:    price,
		UserID:    buyerID,
		EventID:   &eventID,
		CreatedAt: time.Now(),
	}
	s.txns[reference] = &txn
	s.txnTickets[txn.ID] = []uuid.UUID{ticket.ID}
	return txn, event, ticket
}
