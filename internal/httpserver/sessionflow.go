package httpserver

import (
	"errors"
	"net/http"

	"goldtrade/internal/httputil"
	"goldtrade/internal/notify"
	"goldtrade/internal/session"
	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
)

// SessionHandler drives the step-by-step trade flow: start, volume,
// confirm, cancel.
type SessionHandler struct {
	mgr      *session.Manager
	notifier *notify.Notifier
}

func NewSessionHandler(mgr *session.Manager, notifier *notify.Notifier) *SessionHandler {
	return &SessionHandler{mgr: mgr, notifier: notifier}
}

type startRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      types.TradeSide `json:"side"`
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request, adminID string) {
	var req startRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	d, err := h.mgr.Start(adminID, req.AccountID, req.Symbol, req.Side)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionView(d))
}

type volumeRequest struct {
	AccountID string          `json:"account_id"`
	Volume    decimal.Decimal `json:"volume"`
}

func (h *SessionHandler) SetVolume(w http.ResponseWriter, r *http.Request, adminID string) {
	var req volumeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	d, err := h.mgr.SetVolume(r.Context(), adminID, req.AccountID, req.Volume)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionView(d))
}

type accountRequest struct {
	AccountID string `json:"account_id"`
}

func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request, adminID string) {
	var req accountRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.mgr.Confirm(r.Context(), adminID, req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoDraft),
			errors.Is(err, session.ErrDraftExpired),
			errors.Is(err, session.ErrWrongStep):
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		default:
			writeEngineError(w, err)
		}
		return
	}
	if h.notifier != nil {
		h.notifier.TradeOpened(res)
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request, adminID string) {
	var req accountRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.mgr.Cancel(adminID, req.AccountID); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func sessionView(d session.Draft) map[string]interface{} {
	out := map[string]interface{}{
		"symbol": d.Symbol,
		"side":   d.Side,
		"step":   d.Step,
	}
	if d.Step == session.StepConfirm {
		out["volume"] = d.Volume
		out["bid"] = d.Quote.Bid
		out["ask"] = d.Quote.Ask
	}
	return out
}
