package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/payments"
)

// maxWebhookBody caps webhook request bodies.
const maxWebhookBody = 1 << 20 // 1 MiB

// chatWebhookHandler receives chat gateway events. It always answers 200
// immediately and processes the message detached, because the gateway retries
// any response slower than its timeout and retries arrive as duplicates.
func (s *Server) chatWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	var payload chatPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		slog.Warn("Server.chatWebhookHandler: unparsable payload", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Success("ignored"))
		return
	}

	if isFromSelf(payload) || isGroupMessage(payload) {
		writeJSONResponse(w, http.StatusOK, models.Success("ignored"))
		return
	}

	msg := models.InboundMessage{
		Phone:    extractPhone(payload),
		Text:     extractText(payload),
		ImageURL: extractImageURL(payload),
		Name:     extractName(payload),
	}
	if msg.Phone == "" || (msg.Text == "" && msg.ImageURL == "") {
		writeJSONResponse(w, http.StatusOK, models.Success("ignored"))
		return
	}

	// Ack before processing; the transition and sends run detached.
	writeJSONResponse(w, http.StatusOK, models.Success("accepted"))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ProcessTimeout)
		defer cancel()
		if err := s.coordinator.HandleInbound(ctx, msg); err != nil {
			slog.Error("Server.chatWebhookHandler: inbound processing failed", "phone", msg.Phone, "error", err)
		}
	}()
}

// paymentWebhookHandler receives payment provider notifications. The raw body
// is verified against the HMAC signature header before parsing; GET probes
// (the provider's endpoint test) answer 200 without a body.
func (s *Server) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSONResponse(w, http.StatusOK, models.Success("ok"))
		return
	}
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("failed to read body"))
		return
	}

	sig := r.Header.Get(payments.SignatureHeader)
	if !payments.VerifySignature(s.secret, body, sig) {
		slog.Warn("Server.paymentWebhookHandler: signature verification failed")
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("invalid signature"))
		return
	}

	ev, ok := parsePaymentEvent(body)
	if !ok {
		writeJSONResponse(w, http.StatusOK, models.Success("ignored"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ProcessTimeout)
	defer cancel()
	if err := s.coordinator.HandlePayment(ctx, ev); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Unmatched payments are the provider's normal noise (other sales
			// on the same account); acknowledge so it stops retrying.
			slog.Info("Server.paymentWebhookHandler: no session matched", "amount_cents", ev.AmountCents)
			writeJSONResponse(w, http.StatusOK, models.Success("unmatched"))
			return
		}
		slog.Error("Server.paymentWebhookHandler: processing failed", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Success("error"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("matched"))
}

// parsePaymentEvent extracts the amount and external reference from the
// provider's notification. Amounts may arrive as cents (integer) or as a
// decimal value; both map to cents.
func parsePaymentEvent(body []byte) (models.PaymentEvent, bool) {
	var raw struct {
		Event  string `json:"event"`
		Charge struct {
			Value         json.Number `json:"value"`
			Status        string      `json:"status"`
			CorrelationID string      `json:"correlationID"`
		} `json:"charge"`
		Value         json.Number `json:"value"`
		Status        string      `json:"status"`
		CorrelationID string      `json:"correlationID"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.PaymentEvent{}, false
	}

	value := raw.Charge.Value
	if value == "" {
		value = raw.Value
	}
	status := raw.Charge.Status
	if status == "" {
		status = raw.Status
	}
	ref := raw.Charge.CorrelationID
	if ref == "" {
		ref = raw.CorrelationID
	}

	cents := parseAmountCents(value)
	if cents <= 0 {
		return models.PaymentEvent{}, false
	}
	if status != "" && !strings.EqualFold(status, "COMPLETED") && !strings.EqualFold(status, "CONFIRMED") && !strings.EqualFold(status, "paid") {
		return models.PaymentEvent{}, false
	}

	return models.PaymentEvent{
		AmountCents: cents,
		ExternalRef: ref,
		Event:       raw.Event,
		Status:      status,
	}, true
}

// parseAmountCents maps a provider amount to cents. Integer values are
// already cents; decimal values are reais.
func parseAmountCents(v json.Number) int {
	s := v.String()
	if s == "" {
		return 0
	}
	if !strings.Contains(s, ".") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f*100 + 0.5)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success("healthy"))
}

// rootHandler answers platform probes on /.
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("3DFANS bot online"))
}
