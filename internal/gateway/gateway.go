// Package gateway holds the payin/payout provider clients. Provider wire
// protocols are opaque request/response contracts; the settlement core only
// consumes the narrow interfaces below.
package gateway

import (
	"context"

	"github.com/cockroachdb/errors"
)

type Provider string

const (
	ProviderPaystack Provider = "paystack"
	ProviderKorapay  Provider = "korapay"
)

// VerifyResult is the provider's authoritative view of a payin transaction.
type VerifyResult struct {
	Reference string
	Status    string
	Amount    int64
	Currency  string
}

type PayoutDestination struct {
	Type          string // "bank_account" or "mobile_money"
	BankCode      string
	AccountNumber string
	AccountName   string
	Phone         string
}

type PayoutRequest struct {
	Reference   string
	Customer    string
	Amount      int64
	Currency    string
	Destination PayoutDestination
	Narration   string
	Metadata    map[string]string
}

type PayoutResponse struct {
	Reference string
	Status    string
}

// PayinClient verifies inbound collections. Providers whose webhook delivery
// is the only success signal implement WebhookPayin instead of an outbound
// verify call.
type PayinClient interface {
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error)
}

type WebhookPayin interface {
	ParseWebhook(body []byte) (*VerifyResult, error)
}

type PayoutClient interface {
	InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error)
}

type Client interface {
	Provider() Provider
	PayinClient
	PayoutClient
}

// Registry holds the configured provider clients and designates one of them
// as the payout provider.
type Registry struct {
	clients map[Provider]Client
	payout  Provider
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[Provider]Client)}
}

func (r *Registry) Register(c Client) {
	r.clients[c.Provider()] = c
	if r.payout == "" {
		r.payout = c.Provider()
	}
}

func (r *Registry) Get(p Provider) (Client, error) {
	c, ok := r.clients[p]
	if !ok {
		return nil, errors.Newf("unsupported payment provider: %s", p)
	}
	return c, nil
}

func (r *Registry) PayoutClient() (PayoutClient, error) {
	return r.Get(r.payout)
}
