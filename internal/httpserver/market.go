package httpserver

import (
	"net/http"

	"goldtrade/internal/httputil"
	"goldtrade/internal/venue"
)

// MarketHandler serves quotes and venue position listings.
type MarketHandler struct {
	gw      venue.Gateway
	symbols map[string]string
}

func NewMarketHandler(gw venue.Gateway, symbols map[string]string) *MarketHandler {
	return &MarketHandler{gw: gw, symbols: symbols}
}

func (h *MarketHandler) Price(w http.ResponseWriter, r *http.Request, symbol string) {
	vsym, ok := h.symbols[symbol]
	if !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "unknown symbol"})
		return
	}
	quote, err := h.gw.GetPrice(r.Context(), vsym)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "price unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quote)
}

func (h *MarketHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.gw.GetPositions(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "positions unavailable"})
		return
	}
	if positions == nil {
		positions = []venue.Position{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}
