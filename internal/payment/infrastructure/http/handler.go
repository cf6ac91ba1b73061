package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/canonical"
	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	guard   *idempotency.Guard
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, guard *idempotency.Guard) *Handler {
	return &Handler{
		log:     log,
		service: service,
		guard:   guard,
		tracer:  otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(joinTrace)
	r.With(h.guard.Middleware(canonical.DeriveChargeBody)).Post("/payments/charge", h.charge)
	r.With(h.guard.Middleware(canonical.DeriveCryptoChargeBody)).Post("/payments/crypto-charge", h.cryptoCharge)
	r.Get("/payments/{id}", h.getPayment)
	r.Get("/payments/{id}/crypto", h.getCrypto)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	return r
}

// joinTrace continues a caller's trace so that the outbox messages written for
// this request carry the caller's trace id.
func joinTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type chargeResp struct {
	PaymentID uuid.UUID     `json:"paymentId"`
	Status    domain.Status `json:"status"`
	TxHash    string        `json:"txHash,omitempty"`
	Network   string        `json:"network,omitempty"`
}

func (h *Handler) charge(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Charge")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := canonical.ParseCharge(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.service.Charge(ctx, req)
	if err != nil {
		h.fail(w, "charge failed", err)
		return
	}
	span.SetAttributes(attribute.String("payment.id", p.ID().String()))
	h.log.Info("payment accepted", "payment_id", p.ID(), "amount", p.Amount(), "currency", p.Currency())

	w.Header().Set("Location", "/payments/"+p.ID().String())
	writeJSON(w, http.StatusAccepted, chargeResp{PaymentID: p.ID(), Status: p.Status()})
}

func (h *Handler) cryptoCharge(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CryptoCharge")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := canonical.ParseCryptoCharge(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, tx, err := h.service.CryptoCharge(ctx, req)
	if err != nil {
		h.fail(w, "crypto charge failed", err)
		return
	}
	span.SetAttributes(attribute.String("payment.id", p.ID().String()))
	h.log.Info("crypto payment accepted", "payment_id", p.ID(), "network", tx.Network(), "tx_hash", tx.TxHash())

	w.Header().Set("Location", "/payments/"+p.ID().String())
	writeJSON(w, http.StatusAccepted, chargeResp{
		PaymentID: p.ID(),
		Status:    p.Status(),
		TxHash:    tx.TxHash(),
		Network:   tx.Network(),
	})
}

type paymentView struct {
	PaymentID   uuid.UUID     `json:"paymentId"`
	Status      domain.Status `json:"status"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	MerchantRef string        `json:"merchantRef"`
	AuthCode    string        `json:"authCode,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, "get payment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, paymentView{
		PaymentID:   p.ID(),
		Status:      p.Status(),
		Amount:      p.Amount(),
		Currency:    p.Currency(),
		MerchantRef: p.MerchantRef(),
		AuthCode:    p.AuthCode(),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
	})
}

type cryptoView struct {
	PaymentID      uuid.UUID           `json:"paymentId"`
	CryptoCurrency string              `json:"cryptoCurrency"`
	Network        string              `json:"network"`
	FromWallet     string              `json:"fromWallet"`
	TxHash         string              `json:"txHash"`
	Status         domain.CryptoStatus `json:"status"`
	Confirmations  int                 `json:"confirmations"`
	CreatedAt      time.Time           `json:"createdAt"`
	ConfirmedAt    *time.Time          `json:"confirmedAt,omitempty"`
}

func (h *Handler) getCrypto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.service.GetCryptoTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, "get crypto transaction failed", err)
		return
	}
	writeJSON(w, http.StatusOK, cryptoView{
		PaymentID:      tx.PaymentID(),
		CryptoCurrency: tx.CryptoCurrency(),
		Network:        tx.Network(),
		FromWallet:     tx.FromWallet(),
		TxHash:         tx.TxHash(),
		Status:         tx.Status(),
		Confirmations:  tx.Confirmations(),
		CreatedAt:      tx.CreatedAt(),
		ConfirmedAt:    tx.ConfirmedAt(),
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidPayment):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error(msg, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
