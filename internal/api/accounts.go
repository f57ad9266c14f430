package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountId := chi.URLParam(r, "accountId")

	account, err := s.store.GetAccount(r.Context(), accountId)
	if errors.Is(err, store.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.BalanceResponse{
		AccountId:             account.Id,
		CreditBalance:         account.CreditBalance.String(),
		FreeVerificationUnits: account.FreeVerificationUnits,
		DiscountTier:          string(account.DiscountTier),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	accountId := chi.URLParam(r, "accountId")

	filter, err := historyFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.store.History(r.Context(), accountId, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := make([]models.TransactionResponse, 0, len(history))
	for _, txn := range history {
		response = append(response, models.TransactionResponse{
			Id:           txn.Id,
			Amount:       txn.Amount.String(),
			Kind:         string(txn.Kind),
			ReferenceId:  txn.ReferenceId,
			Reason:       txn.Reason,
			BalanceAfter: txn.BalanceAfter.String(),
			CreatedAt:    txn.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func historyFilterFromQuery(r *http.Request) (store.HistoryFilter, error) {
	var filter store.HistoryFilter

	for _, kind := range r.URL.Query()["kind"] {
		filter.Kinds = append(filter.Kinds, models.TransactionKind(kind))
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, errors.New("invalid since timestamp, want RFC3339")
		}
		filter.Since = t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, errors.New("invalid until timestamp, want RFC3339")
		}
		filter.Until = t
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}
