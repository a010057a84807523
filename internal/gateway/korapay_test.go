package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/gateway"
)

func TestKorapayParseWebhook(t *testing.T) {
	k := gateway.NewKorapay("", "whsec")

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-k1","status":"success","amount":5000,"currency":"NGN"}}`)
	got, err := k.ParseWebhook(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Reference != "ref-k1" || got.Status != "success" || got.Amount != 5000 || got.Currency != "NGN" {
		t.Errorf("result = %+v", got)
	}
}

func TestKorapayParseWebhookRejectsIncompletePayloads(t *testing.T) {
	k := gateway.NewKorapay("", "whsec")

	cases := []struct {
		name string
		body string
	}{
		{"not json", `charge.success`},
		{"missing reference", `{"data":{"status":"success","amount":5000,"currency":"NGN"}}`},
		{"missing status", `{"data":{"reference":"ref-k2","amount":5000,"currency":"NGN"}}`},
		{"missing currency", `{"data":{"reference":"ref-k2","status":"success","amount":5000}}`},
		{"zero amount", `{"data":{"reference":"ref-k2","status":"success","amount":0,"currency":"NGN"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := k.ParseWebhook([]byte(tc.body)); !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("err = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestKorapayVerifySignature(t *testing.T) {
	k := gateway.NewKorapay("", "whsec")
	body := []byte(`{"reference":"ref-k3","status":"success"}`)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !k.VerifySignature(body, valid) {
		t.Error("valid signature rejected")
	}
	if k.VerifySignature(body, "deadbeef") {
		t.Error("bad signature accepted")
	}
	if k.VerifySignature([]byte("tampered"), valid) {
		t.Error("signature accepted for a different body")
	}
}

func TestKorapayInitiatePayout(t *testing.T) {
	var got struct {
		Reference   string `json:"reference"`
		Destination struct {
			Type        string `json:"type"`
			Amount      int64  `json:"amount"`
			Currency    string `json:"currency"`
			BankAccount *struct {
				Bank    string `json:"bank"`
				Account string `json:"account"`
			} `json:"bank_account"`
			MobileMoney *struct {
				Operator     string `json:"operator"`
				MobileNumber string `json:"mobile_number"`
			} `json:"mobile_money"`
		} `json:"destination"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transactions/disburse" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer whsec" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"reference":"` + got.Reference + `","status":"success"}}`))
	}))
	defer srv.Close()
	k := gateway.NewKorapay(srv.URL, "whsec")

	resp, err := k.InitiatePayout(context.Background(), gateway.PayoutRequest{
		Reference: "PO-k-1",
		Amount:    4325,
		Currency:  "NGN",
		Destination: gateway.PayoutDestination{
			Type:          "bank_account",
			BankCode:      "058",
			AccountNumber: "0123456789",
		},
	})
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if resp.Reference != "PO-k-1" || resp.Status != "success" {
		t.Errorf("response = %+v", resp)
	}
	if got.Destination.BankAccount == nil || got.Destination.BankAccount.Bank != "058" || got.Destination.BankAccount.Account != "0123456789" {
		t.Errorf("bank destination = %+v", got.Destination.BankAccount)
	}
	if got.Destination.Amount != 4325 || got.Destination.Currency != "NGN" {
		t.Errorf("destination = %+v", got.Destination)
	}

	_, err = k.InitiatePayout(context.Background(), gateway.PayoutRequest{
		Reference: "PO-k-2",
		Amount:    2000,
		Currency:  "NGN",
		Destination: gateway.PayoutDestination{
			Type:     "mobile_money",
			BankCode: "MTN",
			Phone:    "0801234567",
		},
	})
	if err != nil {
		t.Fatalf("mobile money disburse: %v", err)
	}
	if got.Destination.MobileMoney == nil || got.Destination.MobileMoney.Operator != "MTN" || got.Destination.MobileMoney.MobileNumber != "0801234567" {
		t.Errorf("mobile money destination = %+v", got.Destination.MobileMoney)
	}
}

func TestKorapayInitiatePayoutServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	k := gateway.NewKorapay(srv.URL, "whsec")

	_, err := k.InitiatePayout(context.Background(), gateway.PayoutRequest{
		Reference:   "PO-k-3",
		Amount:      1000,
		Currency:    "NGN",
		Destination: gateway.PayoutDestination{Type: "bank_account", BankCode: "058", AccountNumber: "0123456789"},
	})
	if !errors.Is(err, domain.ErrGatewayFailure) {
		t.Errorf("err = %v, want ErrGatewayFailure", err)
	}
}

func TestKorapayVerifyTransactionUnsupported(t *testing.T) {
	k := gateway.NewKorapay("", "whsec")
	if _, err := k.VerifyTransaction(context.Background(), "ref"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}
