package accounts

import (
	"errors"
	"net/http"

	"goldtrade/internal/httputil"
	"goldtrade/internal/model"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, adminID string) {
	accts, err := h.svc.List(r.Context(), adminID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	if accts == nil {
		accts = []model.Account{}
	}
	httputil.WriteJSON(w, http.StatusOK, accts)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, adminID string) {
	var req struct {
		Settings
		InitialFunds decimal.Decimal `json:"initial_funds"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.svc.Create(r.Context(), adminID, req.Settings, req.InitialFunds)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	a, err := h.svc.Get(r.Context(), adminID, accountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	var req Settings
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.svc.UpdateSettings(r.Context(), adminID, accountID, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	if err := h.svc.Delete(r.Context(), adminID, accountID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	var req fundRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.svc.Deposit(r.Context(), adminID, accountID, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	var req fundRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.svc.Withdraw(r.Context(), adminID, accountID, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}
