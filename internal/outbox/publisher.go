package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ticketbay/settlement/internal/adapters/pg"
	"github.com/ticketbay/settlement/internal/adapters/rabbit"
	"github.com/ticketbay/settlement/internal/observability"
)

// Publisher drains durable settlement events to the broker. At-least-once:
// consumers dedupe on the message id, which carries the outbox dedupe key.
type Publisher struct {
	repo      *pg.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *pg.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := p.repo.UnpublishedOutbox(ctx, 50)
			if err != nil {
				p.logger.Error("outbox read failed: ", err)
				continue
			}
			for _, rec := range records {
				msg := amqp.Publishing{
					MessageId:   rec.DedupeKey,
					ContentType: "application/json",
					Body:        rec.Payload,
				}
				if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
					p.logger.WithField("reference", rec.Reference).Error("outbox publish failed: ", err)
					continue
				}
				if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
					p.logger.WithField("reference", rec.Reference).Error("outbox mark failed: ", err)
				}
			}
		}
	}
}
