package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invalidator drops cached entries by tag. Best-effort: implementations log
// failures and swallow them, settlement never observes an error here.
type Invalidator interface {
	Invalidate(ctx context.Context, tags []string)
}

// Tag builds a cache tag from its parts, sanitizing each into a key-safe
// string (non-alphanumeric bytes become '_').
func Tag(parts ...string) string {
	safe := make([]string, len(parts))
	for i, p := range parts {
		safe[i] = sanitize(p)
	}
	return strings.Join(safe, ":")
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ResaleListingsTag is the global tag covering resale listing queries.
const ResaleListingsTag = "resale:listings"

// PurchaseNotice carries everything the buyer/organizer/admin mails need.
type PurchaseNotice struct {
	Reference         string
	BuyerID           uuid.UUID
	OrganizerID       uuid.UUID
	Amount            int64
	PlatformCut       int64
	OrganizerProceeds int64
	TicketCodes       []string
}

// ResaleNotice covers one transferred ticket: buyer/seller/organizer/admin.
type ResaleNotice struct {
	Reference      string
	BuyerID        uuid.UUID
	SellerID       uuid.UUID
	OrganizerID    uuid.UUID
	Price          int64
	PlatformCut    int64
	Royalty        int64
	SellerProceeds int64
	TicketCode     string
}

// Notifier dispatches settlement mails. Calls are fire-and-forget from the
// engine's point of view; a failure never rolls back committed state.
type Notifier interface {
	PurchaseConfirmed(ctx context.Context, n PurchaseNotice) error
	ResaleConfirmed(ctx context.Context, n ResaleNotice) error
}

// PayoutAudit is written before every gateway payout call so a mid-batch
// failure leaves enough of a trail for manual reconciliation.
type PayoutAudit struct {
	Reference     string
	SaleReference string
	TicketID      uuid.UUID
	TicketCode    string
	SellerID      uuid.UUID
	Amount        int64
	Currency      string
	BankCode      string
	AccountNumber string
	InitiatedAt   time.Time
}

type AuditLog interface {
	RecordPayout(ctx context.Context, rec PayoutAudit) error
	RecordPayoutResult(ctx context.Context, reference, status string) error
}
