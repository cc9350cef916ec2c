package api

import (
	"fmt"
	"net/http"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/identity"
)

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.ListTransactions(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newList(toTransactions(txs)))
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	tx, err := h.svc.CreateTransaction(r.Context(), identity.FromContext(r.Context()), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%d", tx.ID))
	h.respondJSON(w, r, http.StatusCreated, toTransaction(tx))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), identity.FromContext(r.Context()), pathID(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toTransaction(tx))
}

// UserTransactions filters by date only when both start_date and end_date
// are given.
func (h *Handler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var rng *domain.DateRange
	if start, end := q.Get("start_date"), q.Get("end_date"); start != "" && end != "" {
		s, err := domain.ParseDate(start)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		e, err := domain.ParseDate(end)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		rng = &domain.DateRange{Start: s, End: e}
	}

	rep, err := h.svc.UserTransactions(r.Context(), identity.FromContext(r.Context()), pathID(r, "user_id"), rng)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, userTransactionsResponse{
		listResponse: newList(toTransactions(rep.Transactions)),
		User:         rep.UserID,
		TotalBalance: domain.FormatAmount(rep.TotalBalance),
	})
}
