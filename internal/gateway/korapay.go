package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ticketbay/settlement/internal/domain"
)

const korapayBaseURL = "https://api.korapay.com/merchant/api/v1"

// Korapay never requires an outbound verify call: its webhook delivery is
// the authoritative success signal, so confirmations arrive pre-validated
// as ParseWebhook payloads.
type Korapay struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewKorapay builds a client against baseURL, falling back to the production
// API when it is empty.
func NewKorapay(baseURL, secret string) *Korapay {
	if baseURL == "" {
		baseURL = korapayBaseURL
	}
	return &Korapay{baseURL: baseURL, secret: secret, client: &http.Client{Timeout: 30 * time.Second}}
}

func (k *Korapay) Provider() Provider { return ProviderKorapay }

type korapayWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// ParseWebhook validates the inbound delivery body. All four data fields are
// required; a malformed payload is a caller error, not a gateway one.
func (k *Korapay) ParseWebhook(body []byte) (*VerifyResult, error) {
	var wh korapayWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "korapay webhook"), domain.ErrInvalidState)
	}
	if wh.Data.Reference == "" || wh.Data.Status == "" || wh.Data.Currency == "" || wh.Data.Amount == 0 {
		return nil, errors.Mark(errors.New("korapay webhook missing data fields"), domain.ErrInvalidState)
	}
	return &VerifyResult{
		Reference: wh.Data.Reference,
		Status:    wh.Data.Status,
		Amount:    wh.Data.Amount,
		Currency:  wh.Data.Currency,
	}, nil
}

// VerifySignature checks the x-korapay-signature header, an HMAC-SHA256 of
// the raw data object.
func (k *Korapay) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(k.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyTransaction exists to satisfy Client; the webhook body is the only
// verification channel for this provider.
func (k *Korapay) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	return nil, errors.Mark(errors.New("korapay transactions are verified by webhook only"), domain.ErrInvalidState)
}

type korapayDisburseRequest struct {
	Reference   string            `json:"reference"`
	Destination korapayDest       `json:"destination"`
	Narration   string            `json:"narration,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type korapayDest struct {
	Type        string         `json:"type"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Narration   string         `json:"narration,omitempty"`
	BankAccount *korapayBank   `json:"bank_account,omitempty"`
	MobileMoney *korapayMobile `json:"mobile_money,omitempty"`
	Customer    korapayCust    `json:"customer"`
}

type korapayBank struct {
	Bank    string `json:"bank"`
	Account string `json:"account"`
}

type korapayMobile struct {
	Operator     string `json:"operator"`
	MobileNumber string `json:"mobile_number"`
}

type korapayCust struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

func (k *Korapay) InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error) {
	dest := korapayDest{
		Type:      req.Destination.Type,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Narration: req.Narration,
		Customer:  korapayCust{Email: req.Customer},
	}
	switch req.Destination.Type {
	case "mobile_money":
		dest.MobileMoney = &korapayMobile{Operator: req.Destination.BankCode, MobileNumber: req.Destination.Phone}
	default:
		dest.BankAccount = &korapayBank{Bank: req.Destination.BankCode, Account: req.Destination.AccountNumber}
	}

	payload, err := json.Marshal(korapayDisburseRequest{
		Reference:   req.Reference,
		Destination: dest,
		Narration:   req.Narration,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/transactions/disburse", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+k.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(httpReq)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "korapay disburse"), domain.ErrGatewayFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Mark(errors.Newf("korapay disburse returned %d", resp.StatusCode), domain.ErrGatewayFailure)
	}

	var body korapayWebhook
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "korapay disburse decode"), domain.ErrGatewayFailure)
	}
	return &PayoutResponse{Reference: body.Data.Reference, Status: body.Data.Status}, nil
}
