package httpserver

import (
	"errors"
	"net/http"

	"goldtrade/internal/engine"
	"goldtrade/internal/httputil"
	"goldtrade/internal/model"
	"goldtrade/internal/notify"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/shopspring/decimal"
)

// TradeHandler exposes the engine's open/close/update operations.
type TradeHandler struct {
	eng      *engine.Engine
	store    store.Store
	notifier *notify.Notifier
}

func NewTradeHandler(eng *engine.Engine, st store.Store, notifier *notify.Notifier) *TradeHandler {
	return &TradeHandler{eng: eng, store: st, notifier: notifier}
}

// writeEngineError maps engine/venue/store failures onto HTTP statuses.
// Business errors keep their message; everything else is generic.
func writeEngineError(w http.ResponseWriter, err error) {
	var ve *engine.ValidationError
	var ibe *engine.InsufficientBalanceError
	var venueErr *venue.Error
	switch {
	case errors.As(err, &ve), errors.As(err, &ibe):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrAccountNotFound), errors.Is(err, engine.ErrOrderNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrAlreadyClosed), errors.Is(err, engine.ErrOrderNotOpen):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.As(err, &venueErr):
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: venueErr.Message})
	case errors.Is(err, store.ErrConflict):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "try again"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}

type openTradeRequest struct {
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Side        types.TradeSide `json:"side"`
	Volume      decimal.Decimal `json:"volume"`
	QuotedPrice decimal.Decimal `json:"quoted_price"`
	Comment     string          `json:"comment"`
}

func (h *TradeHandler) Open(w http.ResponseWriter, r *http.Request, adminID string) {
	var req openTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.eng.OpenTrade(r.Context(), nil, adminID, req.AccountID, engine.Draft{
		Symbol:      req.Symbol,
		Side:        req.Side,
		Volume:      req.Volume,
		QuotedPrice: req.QuotedPrice,
		Comment:     req.Comment,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if h.notifier != nil {
		h.notifier.TradeOpened(res)
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *TradeHandler) Close(w http.ResponseWriter, r *http.Request, adminID, orderID string) {
	closed := types.OrderStatusClosed
	res, err := h.eng.UpdateTrade(r.Context(), nil, adminID, orderID, engine.Patch{Status: &closed})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if h.notifier != nil {
		h.notifier.TradeClosed(res)
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type patchTradeRequest struct {
	Comment           *string          `json:"comment"`
	Ticket            *int64           `json:"ticket"`
	Volume            *decimal.Decimal `json:"volume"`
	NotificationError *string          `json:"notification_error"`
}

// Patch applies a non-closing allow-listed update. Closing goes through
// the dedicated close endpoint.
func (h *TradeHandler) Patch(w http.ResponseWriter, r *http.Request, adminID, orderID string) {
	var req patchTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	patch := engine.Patch{
		Comment:           req.Comment,
		Ticket:            req.Ticket,
		NotificationError: req.NotificationError,
	}
	if req.Volume != nil {
		patch.Volume = req.Volume
	}
	res, err := h.eng.UpdateTrade(r.Context(), nil, adminID, orderID, patch)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request, adminID string) {
	status := types.OrderStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = types.OrderStatusOpen
	}
	orders, err := h.store.ListOrdersByStatus(r.Context(), adminID, status)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request, adminID, orderID string) {
	order, err := h.store.GetOrder(r.Context(), adminID, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *TradeHandler) Ledger(w http.ResponseWriter, r *http.Request, adminID string) {
	entries, err := h.store.ListLedgerEntries(r.Context(), adminID, r.URL.Query().Get("ref_no"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *TradeHandler) Balances(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	acct, err := h.store.GetAccount(r.Context(), adminID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reserved_amount": acct.ReservedAmount,
		"amount_fc":       acct.AmountFC,
		"metal_weight":    acct.MetalWeight,
	})
}
