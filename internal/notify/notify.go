// Package notify dispatches settlement mails over the message broker. The
// mail templating and delivery live in a separate consumer; this side only
// fans the per-party events out, fire-and-forget.
package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ticketbay/settlement/internal/adapters/rabbit"
	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/settlement"
)

type Dispatcher struct {
	pub    *rabbit.Publisher
	logger observability.Logger
}

func NewDispatcher(pub *rabbit.Publisher, logger observability.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, logger: logger}
}

func (d *Dispatcher) PurchaseConfirmed(ctx context.Context, n settlement.PurchaseNotice) error {
	parties := map[string]interface{}{
		"mail.purchase.buyer": map[string]interface{}{
			"user_id":   n.BuyerID,
			"reference": n.Reference,
			"amount":    n.Amount,
			"tickets":   n.TicketCodes,
		},
		"mail.purchase.organizer": map[string]interface{}{
			"user_id":   n.OrganizerID,
			"reference": n.Reference,
			"proceeds":  n.OrganizerProceeds,
		},
		"mail.purchase.admin": map[string]interface{}{
			"reference":    n.Reference,
			"platform_cut": n.PlatformCut,
		},
	}
	return d.publishAll(ctx, parties)
}

func (d *Dispatcher) ResaleConfirmed(ctx context.Context, n settlement.ResaleNotice) error {
	parties := map[string]interface{}{
		"mail.resale.buyer": map[string]interface{}{
			"user_id":   n.BuyerID,
			"reference": n.Reference,
			"ticket":    n.TicketCode,
			"price":     n.Price,
		},
		"mail.resale.seller": map[string]interface{}{
			"user_id":   n.SellerID,
			"reference": n.Reference,
			"proceeds":  n.SellerProceeds,
		},
		"mail.resale.organizer": map[string]interface{}{
			"user_id":   n.OrganizerID,
			"reference": n.Reference,
			"royalty":   n.Royalty,
		},
		"mail.resale.admin": map[string]interface{}{
			"reference":    n.Reference,
			"platform_cut": n.PlatformCut,
		},
	}
	return d.publishAll(ctx, parties)
}

// publishAll keeps going after a failed party: each mail fails
// independently, and the caller only logs whatever comes back.
func (d *Dispatcher) publishAll(ctx context.Context, parties map[string]interface{}) error {
	var firstErr error
	for key, body := range parties {
		payload, err := json.Marshal(body)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		msg := amqp.Publishing{
			MessageId:   uuid.New().String(),
			ContentType: "application/json",
			Body:        payload,
		}
		if err := d.pub.Publish(ctx, key, msg); err != nil {
			d.logger.WithField("routing_key", key).Warn("notification publish failed: ", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
