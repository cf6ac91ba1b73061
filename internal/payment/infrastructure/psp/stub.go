package psp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Stub is a stand-in PSP for local runs. Tokens containing "decline" are
// declined and tokens containing "malformed" get an answer without a code.
type Stub struct {
	log *slog.Logger
}

func NewStub(log *slog.Logger) *Stub {
	return &Stub{log: log}
}

func (s *Stub) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post(authorizePath, s.authorize)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	return r
}

type stubAuthorizeReq struct {
	PaymentID   string `json:"paymentId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	SourceToken string `json:"sourceToken"`
}

func (s *Stub) authorize(w http.ResponseWriter, r *http.Request) {
	var req stubAuthorizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	token := strings.ToLower(req.SourceToken)
	switch {
	case strings.Contains(token, "decline"):
		s.log.Info("psp stub declined", "payment_id", req.PaymentID)
		writeJSON(w, http.StatusOK, map[string]any{"authorized": false, "reason": "DECLINED"})
	case strings.Contains(token, "malformed"):
		writeJSON(w, http.StatusOK, map[string]any{"authorized": true})
	default:
		code := "AUTH-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		s.log.Info("psp stub authorized", "payment_id", req.PaymentID, "auth_code", code)
		writeJSON(w, http.StatusOK, map[string]any{"authorized": true, "authCode": code})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
