package pg

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/settlement"
)

type unitOfWork struct {
	tx      pgx.Tx
	adminID uuid.UUID
}

// MintTickets bumps the category's minted counter by n, guarded against the
// cap in SQL so the count is monotonic and never exceeds max_tickets.
func (u *unitOfWork) MintTickets(ctx context.Context, categoryID uuid.UUID, n int) error {
	result, err := u.tx.Exec(ctx, `
		UPDATE ticket_categories SET minted = minted + $2
		WHERE id = $1 AND minted + $2 <= max_tickets
	`, categoryID, n)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Mark(errors.Newf("category %s cannot mint %d more tickets", categoryID, n), domain.ErrInvalidState)
	}
	return nil
}

func (u *unitOfWork) CreditWallet(ctx context.Context, userID uuid.UUID, amount int64) error {
	result, err := u.tx.Exec(ctx, `
		UPDATE wallets SET balance = balance + $2 WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Mark(errors.Newf("wallet for user %s", userID), domain.ErrNotFound)
	}
	return nil
}

// CreditAdminWallet upserts the platform wallet: it aggregates cuts from
// many concurrent settlements, so the increment has to be relative.
func (u *unitOfWork) CreditAdminWallet(ctx context.Context, amount int64) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $2
	`, u.adminID, amount)
	return err
}

func (u *unitOfWork) TransferTicket(ctx context.Context, xfer settlement.TicketTransfer) error {
	result, err := u.tx.Exec(ctx, `
		UPDATE tickets
		SET code = $2,
		    sold_to = owner_id,
		    owner_id = $3,
		    is_listed = FALSE,
		    resale_price = NULL,
		    resale_count = resale_count + 1,
		    resale_commission = $4
		WHERE id = $1
	`, xfer.TicketID, xfer.NewCode, xfer.NewOwnerID, xfer.Commission)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Mark(errors.Newf("ticket %s", xfer.TicketID), domain.ErrNotFound)
	}
	return nil
}

// RelistTicket puts an abandoned resale back on the market. The last resale
// price is left as set, so an untouched re-list is a no-op and the sweep can
// repeat safely.
func (u *unitOfWork) RelistTicket(ctx context.Context, ticketID uuid.UUID) error {
	_, err := u.tx.Exec(ctx, `
		UPDATE tickets SET is_listed = TRUE WHERE id = $1 AND resale_price IS NOT NULL
	`, ticketID)
	return err
}

// FailPendingTransaction flips the transaction to FAILED only while it is
// still PENDING. Returns false when a concurrent settlement won the race.
func (u *unitOfWork) FailPendingTransaction(ctx context.Context, txnID uuid.UUID) (bool, error) {
	result, err := u.tx.Exec(ctx, `
		UPDATE transactions SET status = 'FAILED' WHERE id = $1 AND status = 'PENDING'
	`, txnID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (u *unitOfWork) InsertSettlementEvent(ctx context.Context, ev settlement.SettlementEvent) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO outbox (id, reference, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, 'NEW', $5)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, ev.ID, ev.Reference, ev.EventType, ev.Payload, ev.DedupeKey)
	return err
}
