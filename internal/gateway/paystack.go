package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ticketbay/settlement/internal/domain"
)

// Paystack is the verify-based payin provider: confirmations are checked
// with an outbound call before any state changes.
type Paystack struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewPaystack(baseURL, secret string) *Paystack {
	return &Paystack{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Paystack) Provider() Provider { return ProviderPaystack }

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "paystack verify"), domain.ErrGatewayFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Mark(errors.Newf("transaction %s unknown to provider", reference), domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Mark(errors.Newf("paystack verify returned %d", resp.StatusCode), domain.ErrGatewayFailure)
	}

	var body paystackVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "paystack verify decode"), domain.ErrGatewayFailure)
	}
	return &VerifyResult{
		Reference: body.Data.Reference,
		Status:    body.Data.Status,
		Amount:    body.Data.Amount,
		Currency:  body.Data.Currency,
	}, nil
}

type paystackTransferRequest struct {
	Source    string            `json:"source"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Recipient string            `json:"recipient"`
	Reference string            `json:"reference"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *Paystack) InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error) {
	payload, err := json.Marshal(paystackTransferRequest{
		Source:    "balance",
		Amount:    req.Amount,
		Currency:  req.Currency,
		Recipient: req.Destination.AccountNumber,
		Reference: req.Reference,
		Reason:    req.Narration,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transfer", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "paystack transfer"), domain.ErrGatewayFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Mark(errors.Newf("paystack transfer returned %d", resp.StatusCode), domain.ErrGatewayFailure)
	}

	var body paystackVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "paystack transfer decode"), domain.ErrGatewayFailure)
	}
	return &PayoutResponse{Reference: body.Data.Reference, Status: body.Data.Status}, nil
}
