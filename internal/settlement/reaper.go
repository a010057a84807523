package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/observability"
)

// Reaper fails resale transactions stuck in PENDING past the abandonment
// window and puts their tickets back on the market. The window is a
// business-level timeout; a late success callback racing the sweep is
// resolved by whichever side wins the status compare-and-set.
type Reaper struct {
	store        Store
	cache        Invalidator
	logger       observability.Logger
	abandonAfter time.Duration
}

func NewReaper(store Store, cache Invalidator, logger observability.Logger, abandonAfter time.Duration) *Reaper {
	return &Reaper{store: store, cache: cache, logger: logger, abandonAfter: abandonAfter}
}

// Run sweeps on a fixed period until the context is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.Sweep(ctx, now); err != nil {
				r.logger.Error("resale sweep failed: ", err)
			}
		}
	}
}

// Sweep fails every RESALE transaction still PENDING before now minus the
// abandonment window and re-lists the distinct set of tickets they
// reference. Idempotent: a repeated sweep over the same transactions is a
// no-op because the status guard fails zero rows the second time.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) error {
	stale, err := r.store.StaleResales(ctx, now.Add(-r.abandonAfter))
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	// Failing the transaction and re-listing its tickets commit together:
	// if the re-list cannot be written the status flip rolls back too, and
	// the next sweep picks the transaction up again. A ticket can sit in
	// more than one abandoned transaction; RelistTicket is idempotent, the
	// map only keeps the cache tags distinct.
	relisted := make(map[uuid.UUID]domain.Ticket)
	tags := []string{ResaleListingsTag}
	var reclaimed int

	for _, s := range stale {
		var failed bool
		err := r.store.WithTx(ctx, func(uow UnitOfWork) error {
			var err error
			failed, err = uow.FailPendingTransaction(ctx, s.Txn.ID)
			if err != nil || !failed {
				return err
			}
			for _, t := range s.Tickets {
				if err := uow.RelistTicket(ctx, t.ID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			r.logger.WithField("reference", s.Txn.Reference).Error("failed to abandon resale: ", err)
			continue
		}
		if !failed {
			// Lost the race to a late confirmation; that side owns the state.
			continue
		}
		reclaimed++
		tags = append(tags, Tag("transaction", s.Txn.Reference))
		for _, t := range s.Tickets {
			relisted[t.ID] = t
		}
	}

	for _, t := range relisted {
		tags = append(tags,
			Tag("ticket", t.ID.String()),
			Tag("event", t.EventID.String(), "ticket-code", t.Code),
		)
	}

	r.cache.Invalidate(ctx, tags)
	observability.ReaperReclaimed.Add(float64(reclaimed))
	r.logger.WithField("reclaimed", reclaimed).Info("abandoned resale sweep complete")
	return nil
}
