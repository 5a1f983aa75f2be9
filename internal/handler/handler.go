package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jmwangi/chamaledger/internal/infrastructure/auth"
	"github.com/jmwangi/chamaledger/internal/infrastructure/kafka"
	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/jmwangi/chamaledger/internal/repository"
	service "github.com/jmwangi/chamaledger/internal/services"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/shopspring/decimal"
)

const topicPaymentCallbacks = "payments.callbacks"

type Handler struct {
	service  service.LedgerService
	producer kafka.KafkaProducer
}

func NewHandler(s service.LedgerService, producer kafka.KafkaProducer) *Handler {
	return &Handler{service: s, producer: producer}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrInsufficientFunds),
		errors.Is(err, pkgerrors.ErrInvalidTransactionKind):
		status = http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrUnauthorized),
		errors.Is(err, pkgerrors.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrAccountNotFound),
		errors.Is(err, pkgerrors.ErrChamaNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrConcurrencyConflict),
		errors.Is(err, pkgerrors.ErrDuplicateReference):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/payments/callback", h.PaymentCallback).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/chamas/{id}/deposits", h.Deposit).Methods("POST")
	r.HandleFunc("/chamas/{id}/withdrawals", h.Withdraw).Methods("POST")
	r.HandleFunc("/chamas/{id}/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/chamas/{id}/transactions", h.GetTransactionHistory).Methods("GET")
	r.HandleFunc("/chamas/{id}/audit", h.GetAuditTrail).Methods("GET")
}

func chamaID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

type ledgerRequest struct {
	Amount      string `json:"amount"`
	PhoneNumber string `json:"phone_number"`
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "user not authenticated"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, models.KindDeposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, models.KindWithdrawal)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, kind models.TransactionKind) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := chamaID(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid chama id"})
		return
	}

	var req ledgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, pkgerrors.ErrInvalidAmount)
		return
	}

	var member *models.Member
	if kind == models.KindWithdrawal {
		member, err = h.service.AuthorizeWithdrawal(r.Context(), userID, id)
	} else {
		member, err = h.service.Membership(r.Context(), userID, id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	txn, err := h.service.Execute(r.Context(), service.ExecuteParams{
		ChamaID:     id,
		Member:      member,
		Kind:        kind,
		Amount:      amount,
		PhoneNumber: req.PhoneNumber,
		Initiator:   auth.Initiator(r.Context()),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, txn)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := chamaID(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid chama id"})
		return
	}

	if _, err := h.service.Membership(r.Context(), userID, id); err != nil {
		h.writeError(w, err)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := chamaID(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid chama id"})
		return
	}

	if _, err := h.service.Membership(r.Context(), userID, id); err != nil {
		h.writeError(w, err)
		return
	}

	var filter repository.TransactionFilter
	if kindParam := r.URL.Query().Get("kind"); kindParam != "" {
		kind := models.TransactionKind(kindParam)
		if kind != models.KindDeposit && kind != models.KindWithdrawal {
			h.writeError(w, pkgerrors.ErrInvalidTransactionKind)
			return
		}
		filter.Kind = &kind
	}
	if memberParam := r.URL.Query().Get("member_id"); memberParam != "" {
		memberID, err := strconv.ParseInt(memberParam, 10, 64)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid member id"})
			return
		}
		filter.MemberID = &memberID
	}

	txns, total, err := h.service.GetTransactionHistory(r.Context(), id, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total.String(),
	})
}

func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, err := chamaID(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid chama id"})
		return
	}

	if _, err := h.service.Membership(r.Context(), userID, id); err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := h.service.GetAuditTrail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// PaymentCallback accepts the simulated mobile-money callback and hands
// it to the callback consumer via Kafka. The consumer turns confirmed
// callbacks into ledger deposits.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChamaID     int64  `json:"chama_id"`
		Amount      string `json:"amount"`
		PhoneNumber string `json:"phone_number"`
		CheckoutID  string `json:"checkout_id"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
		return
	}
	if _, err := decimal.NewFromString(req.Amount); err != nil {
		h.writeError(w, pkgerrors.ErrInvalidAmount)
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to encode callback"})
		return
	}
	if err := h.producer.Send(context.WithoutCancel(r.Context()), topicPaymentCallbacks, req.CheckoutID, payload); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to queue callback"})
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
