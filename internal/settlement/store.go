package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticketbay/settlement/internal/domain"
)

// Store is the ledger the engine settles against. LockForStatus is the sole
// idempotency gate: it must execute the read-compare-write of the status
// field as one atomic unit and commit before any downstream mutation runs.
// Only PENDING transactions transition; a terminal row is reported back
// untouched via AlreadyProcessed.
type Store interface {
	LockForStatus(ctx context.Context, reference string, target domain.TxStatus) (*domain.LockResult, error)
	TransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	TicketIDsForTransaction(ctx context.Context, txnID uuid.UUID) ([]uuid.UUID, error)
	TicketsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Ticket, error)
	EventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	StaleResales(ctx context.Context, cutoff time.Time) ([]StaleResale, error)
	WithTx(ctx context.Context, fn func(UnitOfWork) error) error
}

// UnitOfWork scopes mutations to one storage transaction. Counter updates
// (wallet balances, minted counts) are relative increments applied by the
// store, never read-then-write from here.
type UnitOfWork interface {
	MintTickets(ctx context.Context, categoryID uuid.UUID, n int) error
	CreditWallet(ctx context.Context, userID uuid.UUID, amount int64) error
	CreditAdminWallet(ctx context.Context, amount int64) error
	TransferTicket(ctx context.Context, xfer TicketTransfer) error
	RelistTicket(ctx context.Context, ticketID uuid.UUID) error
	FailPendingTransaction(ctx context.Context, txnID uuid.UUID) (bool, error)
	InsertSettlementEvent(ctx context.Context, ev SettlementEvent) error
}

// TicketTransfer re-issues the code, hands ownership to the buyer, clears
// the listing and records the commission taken on the sale.
type TicketTransfer struct {
	TicketID   uuid.UUID
	NewCode    string
	NewOwnerID uuid.UUID
	Commission int64
}

// SettlementEvent is the durable outbox record written alongside a
// settlement so downstream consumers and reconciliation see every flip.
type SettlementEvent struct {
	ID        uuid.UUID
	Reference string
	EventType string
	Payload   []byte
	DedupeKey string
}

// StaleResale is a PENDING resale past the abandonment cutoff together with
// the tickets it references.
type StaleResale struct {
	Txn     domain.Transaction
	Tickets []domain.Ticket
}
