package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/gateway"
	"github.com/ticketbay/settlement/internal/observability"
)

// settleResale transfers each ticket to the buyer and pays out the seller.
// Tickets are processed sequentially so payout ordering stays deterministic
// and auditable. A mid-batch failure does not compensate payouts already
// issued for earlier tickets; the audit log written before each gateway call
// is the reconciliation trail for that case.
func (e *Engine) settleResale(ctx context.Context, txn domain.Transaction) (*Outcome, error) {
	ids, err := e.store.TicketIDsForTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.Mark(errors.Newf("transaction %s has no tickets", txn.Reference), domain.ErrInvalidState)
	}
	if txn.EventID == nil {
		return nil, errors.Mark(errors.Newf("resale %s has no event", txn.Reference), domain.ErrInvalidState)
	}

	tickets, err := e.store.TicketsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(tickets) != len(ids) {
		return nil, errors.Mark(errors.Newf("resale %s: %d of %d tickets missing",
			txn.Reference, len(ids)-len(tickets), len(ids)), domain.ErrNotFound)
	}
	event, err := e.store.EventByID(ctx, *txn.EventID)
	if err != nil {
		return nil, err
	}

	var (
		totalPlatformCut int64
		totalRoyalty     int64
		notices          []ResaleNotice
		tags             = []string{Tag("transaction", txn.Reference), ResaleListingsTag}
	)

	for _, t := range tickets {
		if t.ResalePrice == nil {
			return nil, errors.Mark(errors.Newf("ticket %s has no resale price", t.ID), domain.ErrInvalidState)
		}
		if t.PayoutBankCode == "" || t.PayoutAccountNo == "" {
			return nil, errors.Mark(errors.Newf("ticket %s has no payout destination", t.ID), domain.ErrInvalidState)
		}
		price := *t.ResalePrice
		platformCut, royalty, sellerProceeds := domain.SplitResaleFee(price, event.ResaleFeeBps, event.RoyaltyFeeBps)

		code, err := domain.NewTicketCode()
		if err != nil {
			return nil, err
		}
		err = e.store.WithTx(ctx, func(uow UnitOfWork) error {
			return uow.TransferTicket(ctx, TicketTransfer{
				TicketID:   t.ID,
				NewCode:    code,
				NewOwnerID: txn.UserID,
				Commission: platformCut + royalty,
			})
		})
		if err != nil {
			return nil, err
		}

		// Payout reference is distinct from the sale reference so a retried
		// confirmation can never collide with an issued transfer.
		payoutRef := "PO-" + uuid.New().String()
		audit := PayoutAudit{
			Reference:     payoutRef,
			SaleReference: txn.Reference,
			TicketID:      t.ID,
			TicketCode:    code,
			SellerID:      t.OwnerID,
			Amount:        sellerProceeds,
			Currency:      e.currency,
			BankCode:      t.PayoutBankCode,
			AccountNumber: t.PayoutAccountNo,
			InitiatedAt:   time.Now().UTC(),
		}
		if err := e.audit.RecordPayout(ctx, audit); err != nil {
			e.logger.WithField("payout_reference", payoutRef).Error("payout audit write failed: ", err)
		}

		resp, err := e.payouts.InitiatePayout(ctx, gateway.PayoutRequest{
			Reference: payoutRef,
			Customer:  t.PayoutAccountNm,
			Amount:    sellerProceeds,
			Currency:  e.currency,
			Destination: gateway.PayoutDestination{
				Type:          "bank_account",
				BankCode:      t.PayoutBankCode,
				AccountNumber: t.PayoutAccountNo,
				AccountName:   t.PayoutAccountNm,
			},
			Narration: "Resale proceeds for ticket " + code,
			Metadata: map[string]string{
				"sale_reference": txn.Reference,
				"ticket_id":      t.ID.String(),
			},
		})
		if err != nil {
			return nil, err
		}
		observability.PayoutsInitiated.Inc()
		if err := e.audit.RecordPayoutResult(ctx, payoutRef, resp.Status); err != nil {
			e.logger.WithField("payout_reference", payoutRef).Error("payout audit update failed: ", err)
		}

		totalPlatformCut += platformCut
		totalRoyalty += royalty
		tags = append(tags,
			Tag("ticket", t.ID.String()),
			Tag("event", t.EventID.String(), "ticket-code", t.Code),
			Tag("wallet", t.OwnerID.String()),
		)
		notices = append(notices, ResaleNotice{
			Reference:      txn.Reference,
			BuyerID:        txn.UserID,
			SellerID:       t.OwnerID,
			OrganizerID:    event.OrganizerID,
			Price:          price,
			PlatformCut:    platformCut,
			Royalty:        royalty,
			SellerProceeds: sellerProceeds,
			TicketCode:     code,
		})
	}

	err = e.store.WithTx(ctx, func(uow UnitOfWork) error {
		if err := uow.CreditWallet(ctx, event.OrganizerID, totalRoyalty); err != nil {
			return err
		}
		if err := uow.CreditAdminWallet(ctx, totalPlatformCut); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"reference":    txn.Reference,
			"type":         txn.Type,
			"platform_cut": totalPlatformCut,
			"royalty":      totalRoyalty,
			"tickets":      len(tickets),
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

	tags = append(tags, Tag("wallet", event.OrganizerID.String()), Tag("wallet", "admin"))
	e.cache.Invalidate(ctx, tags)

	go func(notices []ResaleNotice) {
		ctx := context.WithoutCancel(ctx)
		for _, n := range notices {
			if err := e.notifier.ResaleConfirmed(ctx, n); err != nil {
				e.logger.WithField("reference", n.Reference).Error("resale notification failed: ", err)
			}
		}
	}(notices)

	out := &Outcome{Message: "Payment verified", Success: true}
	for _, id := range ids {
		out.TicketIDs = append(out.TicketIDs, id.String())
	}
	return out, nil
}
