package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxPurchase TxType = "PURCHASE"
	TxResale   TxType = "RESALE"
	TxFund     TxType = "FUND"
	TxWithdraw TxType = "WITHDRAW"
)

type TxStatus string

const (
	TxPending TxStatus = "PENDING"
	TxSuccess TxStatus = "SUCCESS"
	TxFailed  TxStatus = "FAILED"
)

// Transaction is the settlement ledger entry. Reference is the idempotency
// key: globally unique, assigned at initiation, never reused. Status moves
// PENDING -> SUCCESS|FAILED exactly once and never reverts.
type Transaction struct {
	ID        uuid.UUID
	Reference string
	Type      TxType
	Status    TxStatus
	Amount    int64 // minor currency units
	UserID    uuid.UUID
	EventID   *uuid.UUID
	CreatedAt time.Time
}

// Ticket invariant: IsListed implies ResalePrice != nil; a delisted ticket
// keeps its last ResalePrice only while a resale is in flight.
type Ticket struct {
	ID               uuid.UUID
	Code             string
	OwnerID          uuid.UUID
	EventID          uuid.UUID
	CategoryID       uuid.UUID
	IsListed         bool
	ResalePrice      *int64
	ResaleCount      int
	SoldTo           *uuid.UUID
	ResaleCommission int64
	PayoutBankCode   string
	PayoutAccountNo  string
	PayoutAccountNm  string
}

type TicketCategory struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	MaxTickets int
	Minted     int
}

// Wallet balance is mutated only through relative increments issued by the
// store, never read-modify-write from application code.
type Wallet struct {
	UserID  uuid.UUID
	Balance decimal.Decimal
	PinHash *string
}

type Event struct {
	ID            uuid.UUID
	OrganizerID   uuid.UUID
	PrimaryFeeBps int32
	ResaleFeeBps  int32
	RoyaltyFeeBps int32
}

// LockResult is the outcome of the status compare-and-set. AlreadyProcessed
// means the stored status already equalled the target and nothing was written.
type LockResult struct {
	AlreadyProcessed bool
	Txn              Transaction
}
