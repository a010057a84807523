package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/ticketbay/settlement/internal/adapters/pg"
	redisadapter "github.com/ticketbay/settlement/internal/adapters/redis"
	"github.com/ticketbay/settlement/internal/config"
	"github.com/ticketbay/settlement/internal/domain"
	"github.com/ticketbay/settlement/internal/gateway"
	"github.com/ticketbay/settlement/internal/idempotency"
	"github.com/ticketbay/settlement/internal/settlement"
)

// PayoutAuditReader lists payouts whose gateway result never came back, for
// the manual reconciliation surface.
type PayoutAuditReader interface {
	Unreconciled(ctx context.Context, olderThan time.Time) ([]settlement.PayoutAudit, error)
}

type Handlers struct {
	cfg     *config.Config
	engine  *settlement.Engine
	repo    *pg.Repository
	cache   *redisadapter.Cache
	idemp   *idempotency.Idempotency
	korapay *gateway.Korapay
	audit   PayoutAuditReader
}

func NewHandlers(cfg *config.Config, engine *settlement.Engine, repo *pg.Repository, cache *redisadapter.Cache, idemp *idempotency.Idempotency, korapay *gateway.Korapay, audit PayoutAuditReader) *Handlers {
	return &Handlers{
		cfg:     cfg,
		engine:  engine,
		repo:    repo,
		cache:   cache,
		idemp:   idemp,
		korapay: korapay,
		audit:   audit,
	}
}

// VerifyPayment is the inbound confirmation endpoint. Duplicate deliveries
// are harmless: retries hit the engine's idempotency gate and come back as
// "Already verified".
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		Reference string `json:"reference"`
		Provider  string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	provider := gateway.Provider(req.Provider)
	if provider == "" {
		provider = gateway.ProviderPaystack
	}

	outcome, err := h.engine.Verify(r.Context(), provider, req.Reference)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	data, _ := json.Marshal(outcome)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusOK, Result: data})
}

// ProviderWebhook accepts the raw provider delivery. For the webhook-only
// provider the body itself is the authoritative verification result.
func (h *Handlers) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	provider := gateway.Provider(chi.URLParam(r, "provider"))

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if provider == gateway.ProviderKorapay && h.korapay != nil {
		if !h.korapay.VerifySignature(body, r.Header.Get("x-korapay-signature")) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	outcome, err := h.engine.HandleWebhook(r.Context(), provider, body)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcome)
}

// GetTransaction is a read projection for support tooling, served through
// the cache-aside wrapper under the transaction's tag.
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		writeError(w, http.StatusBadRequest, "missing reference")
		return
	}

	var txn domain.Transaction
	tag := settlement.Tag("transaction", reference)
	err := h.cache.ReadThrough(r.Context(), "txn:"+tag, []string{tag},
		h.cfg.CacheTTL, h.cfg.CacheStaleWindow, &txn,
		func(ctx context.Context) (interface{}, error) {
			return h.repo.TransactionByReference(ctx, reference)
		})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reference": txn.Reference,
		"type":      txn.Type,
		"status":    txn.Status,
		"amount":    txn.Amount,
		"createdAt": txn.CreatedAt,
	})
}

// UnreconciledPayouts lists payouts still waiting on a gateway result past
// the grace window. Support tooling walks this list after a mid-batch
// settlement failure to finish the seller credits by hand.
func (h *Handlers) UnreconciledPayouts(w http.ResponseWriter, r *http.Request) {
	grace := time.Hour
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed older_than duration")
			return
		}
		grace = d
	}

	records, err := h.audit.Unreconciled(r.Context(), time.Now().Add(-grace))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(records),
		"payouts": records,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"message": message, "success": false})
}

// writeEngineError maps the settlement error taxonomy onto HTTP classes.
// Gateway payloads are never echoed to the caller.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid confirmation request")
	case errors.Is(err, domain.ErrGatewayFailure):
		writeError(w, http.StatusBadGateway, "payment gateway unavailable, retry later")
	case errors.Is(err, domain.ErrSerializationFailure):
		writeError(w, http.StatusConflict, "conflict, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
