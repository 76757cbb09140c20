package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

// StatusChecker looks an earlier transaction up.
type StatusChecker interface {
	CheckStatus(ctx context.Context, transactionID string, method domain.PaymentMethod) (domain.PaymentResponse, error)
}

// Handler serves a Gateway over HTTP so a terminal can reach a separately
// deployed simulator.
type Handler struct {
	gateway Gateway
	logger  *slog.Logger
}

func NewHandler(gateway Gateway, logger *slog.Logger) *Handler {
	return &Handler{
		gateway: gateway,
		logger:  logger,
	}
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Method.Valid() {
		h.writeError(w, http.StatusBadRequest, "unsupported payment method")
		return
	}
	if req.Currency == "" {
		req.Currency = domain.CurrencyUGX
	}

	resp, err := h.gateway.ProcessPayment(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnsupportedMethod) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to process payment", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusBadGateway, "payment processing failed")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	checker, ok := h.gateway.(StatusChecker)
	if !ok {
		h.writeError(w, http.StatusNotImplemented, "status lookup not supported")
		return
	}

	id := r.PathValue("id")
	method := domain.PaymentMethod(r.URL.Query().Get("method"))
	if id == "" || !method.Valid() {
		h.writeError(w, http.StatusBadRequest, "transaction id and method are required")
		return
	}

	resp, err := checker.CheckStatus(r.Context(), id, method)
	if err != nil {
		h.logger.Error("failed to check payment status", "error", err, "transaction_id", id)
		h.writeError(w, http.StatusBadGateway, "payment status lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleMethods(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, SupportedMethods())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
