package settlement

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/ticketbay/settlement/internal/domain"
	"golang.org/x/sync/errgroup"
)

// settlePurchase consumes a transaction the gate just flipped to SUCCESS:
// mint the linked tickets into their categories and split the amount between
// organizer and platform. Runs only once per reference.
func (e *Engine) settlePurchase(ctx context.Context, txn domain.Transaction) (*Outcome, error) {
	ids, err := e.store.TicketIDsForTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.Mark(errors.Newf("transaction %s has no tickets", txn.Reference), domain.ErrInvalidState)
	}
	if txn.EventID == nil {
		return nil, errors.Mark(errors.Newf("purchase %s has no event", txn.Reference), domain.ErrInvalidState)
	}

	var (
		tickets []domain.Ticket
		event   *domain.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tickets, err = e.store.TicketsByIDs(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		event, err = e.store.EventByID(gctx, *txn.EventID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(tickets) != len(ids) {
		// Partial ticket loss is fatal, never silently settled.
		return nil, errors.Mark(errors.Newf("purchase %s: %d of %d tickets missing",
			txn.Reference, len(ids)-len(tickets), len(ids)), domain.ErrNotFound)
	}

	perCategory := make(map[uuid.UUID]int)
	codes := make([]string, 0, len(tickets))
	for _, t := range tickets {
		perCategory[t.CategoryID]++
		codes = append(codes, t.Code)
	}

	platformCut, organizerProceeds := domain.SplitFee(txn.Amount, event.PrimaryFeeBps)

	err = e.store.WithTx(ctx, func(uow UnitOfWork) error {
		for categoryID, n := range perCategory {
			if err := uow.MintTickets(ctx, categoryID, n); err != nil {
				return err
			}
		}
		if err := uow.CreditWallet(ctx, event.OrganizerID, organizerProceeds); err != nil {
			return err
		}
		if err := uow.CreditAdminWallet(ctx, platformCut); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"reference":          txn.Reference,
			"type":               txn.Type,
			"amount":             txn.Amount,
			"platform_cut":       platformCut,
			"organizer_proceeds": organizerProceeds,
			"tickets":            len(tickets),
		})
		return uow.InsertSettlementEvent(ctx, SettlementEvent{
			ID:        uuid.New(),
			Reference: txn.Reference,
			EventType: "transaction.settled",
			Payload:   payload,
			DedupeKey: txn.Reference + ":settled",
		})
	})
	if err != nil {
		return nil, err
	}

	tags := []string{Tag("transaction", txn.Reference), Tag("wallet", event.OrganizerID.String()), Tag("wallet", "admin")}
	for _, t := range tickets {
		tags = append(tags, Tag("ticket", t.ID.String()))
	}
	for categoryID := range perCategory {
		tags = append(tags, Tag("ticket-category", categoryID.String()))
	}
	e.cache.Invalidate(ctx, tags)

	notice := PurchaseNotice{
		Reference:         txn.Reference,
		BuyerID:           txn.UserID,
		OrganizerID:       event.OrganizerID,
		Amount:            txn.Amount,
		PlatformCut:       platformCut,
		OrganizerProceeds: organizerProceeds,
		TicketCodes:       codes,
	}
	go func() {
		if err := e.notifier.PurchaseConfirmed(context.WithoutCancel(ctx), notice); err != nil {
			e.logger.WithField("reference", txn.Reference).Error("purchase notification failed: ", err)
		}
	}()

	out := &Outcome{Message: "Payment verified", Success: true}
	for _, id := range ids {
		out.TicketIDs = append(out.TicketIDs, id.String())
	}
	return out, nil
}
