package pg

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/settlement"
)

const serializationFailureCode = "40001"

// Repository is the ledger store. All status flips and counter updates run
// through SERIALIZABLE transactions; wallet and minted-count changes are
// relative SQL increments so concurrent settlements never lose updates.
type Repository struct {
	pool    *pgxpool.Pool
	adminID uuid.UUID
}

func NewRepository(pool *pgxpool.Pool, adminID uuid.UUID) *Repository {
	return &Repository{pool: pool, adminID: adminID}
}

func (r *Repository) withPgxTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// WithTx runs fn inside one storage transaction exposed as a unit of work.
func (r *Repository) WithTx(ctx context.Context, fn func(settlement.UnitOfWork) error) error {
	return r.withPgxTx(ctx, func(tx pgx.Tx) error {
		return fn(&unitOfWork{tx: tx, adminID: r.adminID})
	})
}

// LockForStatus is the idempotency gate: read the row under FOR UPDATE,
// compare the status, and write the target only when the row is still
// PENDING, all in one transaction committed before the caller touches
// tickets or wallets. A terminal row is never rewritten; it comes back
// with AlreadyProcessed set and its stored status intact.
func (r *Repository) LockForStatus(ctx context.Context, reference string, target domain.TxStatus) (*domain.LockResult, error) {
	var result domain.LockResult
	err := r.withPgxTx(ctx, func(tx pgx.Tx) error {
		txn, err := scanTransaction(tx.QueryRow(ctx, `
			SELECT id, reference, type, status, amount, user_id, event_id, created_at
			FROM transactions WHERE reference = $1
			FOR UPDATE
		`, reference))
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Mark(errors.Newf("transaction %s", reference), domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if txn.Status == target || txn.Status != domain.TxPending {
			result = domain.LockResult{AlreadyProcessed: true, Txn: txn}
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE transactions SET status = $2 WHERE id = $1 AND status = 'PENDING'
		`, txn.ID, target); err != nil {
			return err
		}
		txn.Status = target
		result = domain.LockResult{AlreadyProcessed: false, Txn: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *Repository) TransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx, `
		SELECT id, reference, type, status, amount, user_id, event_id, created_at
		FROM transactions WHERE reference = $1
	`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("transaction %s", reference), domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *Repository) TicketIDsForTransaction(ctx context.Context, txnID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ticket_id FROM transaction_tickets WHERE transaction_id = $1
	`, txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) TicketsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, owner_id, event_id, category_id, is_listed, resale_price,
		       resale_count, sold_to, resale_commission,
		       payout_bank_code, payout_account_no, payout_account_name
		FROM tickets WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		err := rows.Scan(&t.ID, &t.Code, &t.OwnerID, &t.EventID, &t.CategoryID, &t.IsListed,
			&t.ResalePrice, &t.ResaleCount, &t.SoldTo, &t.ResaleCommission,
			&t.PayoutBankCode, &t.PayoutAccountNo, &t.PayoutAccountNm)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *Repository) EventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var ev domain.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, organizer_id, primary_fee_bps, resale_fee_bps, royalty_fee_bps
		FROM events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.OrganizerID, &ev.PrimaryFeeBps, &ev.ResaleFeeBps, &ev.RoyaltyFeeBps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("event %s", id), domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// StaleResales returns PENDING resale transactions created before cutoff,
// each with the tickets it references.
func (r *Repository) StaleResales(ctx context.Context, cutoff time.Time) ([]settlement.StaleResale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.reference, t.type, t.status, t.amount, t.user_id, t.event_id, t.created_at,
		       tk.id, tk.code, tk.owner_id, tk.event_id, tk.category_id, tk.is_listed, tk.resale_price,
		       tk.resale_count, tk.sold_to, tk.resale_commission,
		       tk.payout_bank_code, tk.payout_account_no, tk.payout_account_name
		FROM transactions t
		JOIN transaction_tickets tt ON tt.transaction_id = t.id
		JOIN tickets tk ON tk.id = tt.ticket_id
		WHERE t.type = 'RESALE' AND t.status = 'PENDING' AND t.created_at < $1
		ORDER BY t.id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		stale   []settlement.StaleResale
		current *settlement.StaleResale
	)
	for rows.Next() {
		var (
			txn domain.Transaction
			tk  domain.Ticket
		)
		err := rows.Scan(&txn.ID, &txn.Reference, &txn.Type, &txn.Status, &txn.Amount, &txn.UserID, &txn.EventID, &txn.CreatedAt,
			&tk.ID, &tk.Code, &tk.OwnerID, &tk.EventID, &tk.CategoryID, &tk.IsListed, &tk.ResalePrice,
			&tk.ResaleCount, &tk.SoldTo, &tk.ResaleCommission,
			&tk.PayoutBankCode, &tk.PayoutAccountNo, &tk.PayoutAccountNm)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Txn.ID != txn.ID {
			if current != nil {
				stale = append(stale, *current)
			}
			current = &settlement.StaleResale{Txn: txn}
		}
		current.Tickets = append(current.Tickets, tk)
	}
	if current != nil {
		stale = append(stale, *current)
	}
	return stale, rows.Err()
}

// WalletByUser reads the wallet balance. Balance is cast to text so the
// NUMERIC column round-trips into a decimal without driver codecs.
func (r *Repository) WalletByUser(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var (
		w   domain.Wallet
		bal string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, balance::text, pin_hash FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &bal, &w.PinHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("wallet for user %s", userID), domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	w.Balance, err = decimal.NewFromString(bal)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var txn domain.Transaction
	err := row.Scan(&txn.ID, &txn.Reference, &txn.Type, &txn.Status, &txn.Amount,
		&txn.UserID, &txn.EventID, &txn.CreatedAt)
	return txn, err
}
