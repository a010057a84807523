package settlement

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/gateway"
	"github.com/ticketbay/settlement/internal/observability"
)

// Outcome is the boundary response for a confirmation. TicketIDs is set only
// when a settlement actually minted or transferred tickets on this call.
type Outcome struct {
	Message   string   `json:"message"`
	Success   bool     `json:"success"`
	TicketIDs []string `json:"ticketIds,omitempty"`
}

// Engine drives a provider confirmation through the idempotency gate and
// into the type-specific settlement. Safe for concurrent duplicate calls on
// the same reference: the store's compare-and-set turns the loser away.
type Engine struct {
	store    Store
	gateways *gateway.Registry
	payouts  gateway.PayoutClient
	cache    Invalidator
	notifier Notifier
	audit    AuditLog
	logger   observability.Logger
	currency string
}

func NewEngine(store Store, gateways *gateway.Registry, payouts gateway.PayoutClient, cache Invalidator, notifier Notifier, audit AuditLog, logger observability.Logger, currency string) *Engine {
	return &Engine{
		store:    store,
		gateways: gateways,
		payouts:  payouts,
		cache:    cache,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		currency: currency,
	}
}

// Verify confirms a transaction with an outbound call to the provider and
// settles it. Retries are safe: the idempotency gate makes a second call on
// the same reference a no-op.
func (e *Engine) Verify(ctx context.Context, provider gateway.Provider, reference string) (*Outcome, error) {
	if reference == "" {
		return nil, errors.Mark(errors.New("missing transaction reference"), domain.ErrInvalidState)
	}
	client, err := e.gateways.Get(provider)
	if err != nil {
		return nil, errors.Mark(err, domain.ErrInvalidState)
	}
	result, err := client.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	return e.settle(ctx, result)
}

// HandleWebhook settles from an inbound provider delivery whose payload is
// itself the authoritative verification result.
func (e *Engine) HandleWebhook(ctx context.Context, provider gateway.Provider, body []byte) (*Outcome, error) {
	client, err := e.gateways.Get(provider)
	if err != nil {
		return nil, errors.Mark(err, domain.ErrInvalidState)
	}
	hook, ok := client.(gateway.WebhookPayin)
	if !ok {
		return nil, errors.Mark(errors.Newf("provider %s does not deliver webhooks", provider), domain.ErrInvalidState)
	}
	result, err := hook.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	return e.settle(ctx, result)
}

func (e *Engine) settle(ctx context.Context, result *gateway.VerifyResult) (*Outcome, error) {
	if result.Reference == "" {
		return nil, errors.Mark(errors.New("provider result has no reference"), domain.ErrInvalidState)
	}
	target := MapProviderStatus(result.Status)

	if target == domain.TxSuccess {
		if err := e.checkProviderResult(ctx, result); err != nil {
			return nil, err
		}
	}

	lock, err := e.store.LockForStatus(ctx, result.Reference, target)
	if err != nil {
		return nil, err
	}
	if lock.AlreadyProcessed {
		// The ledger status is authoritative: a terminal transaction never
		// re-arms, whatever the provider re-read says.
		switch lock.Txn.Status {
		case domain.TxSuccess:
			return &Outcome{Message: "Already verified", Success: true}, nil
		case domain.TxFailed:
			return &Outcome{Message: "Transaction failed", Success: false}, nil
		default:
			return &Outcome{Message: "Transaction is still pending", Success: false}, nil
		}
	}
	if target == domain.TxFailed {
		return &Outcome{Message: "Transaction failed", Success: false}, nil
	}

	txn := lock.Txn
	var outcome *Outcome
	switch txn.Type {
	case domain.TxPurchase:
		outcome, err = e.settlePurchase(ctx, txn)
	case domain.TxResale:
		outcome, err = e.settleResale(ctx, txn)
	default:
		return nil, errors.Mark(errors.Newf("unsupported transaction type %s", txn.Type), domain.ErrInvalidState)
	}
	if err != nil {
		observability.SettlementsTotal.WithLabelValues(string(txn.Type), "error").Inc()
		return nil, err
	}
	observability.SettlementsTotal.WithLabelValues(string(txn.Type), "settled").Inc()
	return outcome, nil
}

// checkProviderResult compares a successful provider confirmation against
// the ledger row before anything transitions. A confirmation for less than
// the booked amount, or in another currency, must not settle the full row.
func (e *Engine) checkProviderResult(ctx context.Context, result *gateway.VerifyResult) error {
	txn, err := e.store.TransactionByReference(ctx, result.Reference)
	if err != nil {
		return err
	}
	if result.Amount > 0 && result.Amount != txn.Amount {
		return errors.Mark(
			errors.Newf("provider confirmed %d for %s but ledger holds %d", result.Amount, result.Reference, txn.Amount),
			domain.ErrInvalidState,
		)
	}
	if result.Currency != "" && e.currency != "" && !strings.EqualFold(result.Currency, e.currency) {
		return errors.Mark(
			errors.Newf("provider confirmed %s in %s, settlement currency is %s", result.Reference, result.Currency, e.currency),
			domain.ErrInvalidState,
		)
	}
	return nil
}

// MapProviderStatus folds a provider status string into the three-valued
// internal status. Anything unrecognized stays PENDING.
func MapProviderStatus(s string) domain.TxStatus {
	switch strings.ToLower(s) {
	case "success", "successful", "paid":
		return domain.TxSuccess
	case "failed", "abandoned", "cancelled", "reversed", "expired":
		return domain.TxFailed
	default:
		return domain.TxPending
	}
}
