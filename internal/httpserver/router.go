package httpserver

import (
	"net/http"

	"goldtrade/internal/accounts"
	"goldtrade/internal/auth"
	"goldtrade/internal/health"
	"goldtrade/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	AuthHandler    *auth.Handler
	AuthService    *auth.Service
	AccountHandler *accounts.Handler
	TradeHandler   *TradeHandler
	SessionHandler *SessionHandler
	MarketHandler  *MarketHandler
	HealthHandler  *health.Handler
	MetricsHandler http.Handler
	InternalToken  string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Get)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)
	r.Get("/health/full", d.HealthHandler.Full)
	r.With(InternalAuth(d.InternalToken)).Get("/metrics", d.MetricsHandler.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", d.AuthHandler.Login)
		r.With(InternalAuth(d.InternalToken)).Post("/auth/register", d.AuthHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.AuthHandler.Me(w, r, adminID)
			})
			r.Post("/trades", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Open(w, r, adminID)
			})
			r.Get("/trades", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.List(w, r, adminID)
			})
			r.Get("/trades/{id}", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Get(w, r, adminID, chi.URLParam(r, "id"))
			})
			r.Post("/trades/{id}/close", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Close(w, r, adminID, chi.URLParam(r, "id"))
			})
			r.Patch("/trades/{id}", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Patch(w, r, adminID, chi.URLParam(r, "id"))
			})
			r.Get("/ledger", func(w http.ResponseWriter, r *http.Request) {
				adminID, ok := AdminID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Ledger(w, r, adminID)
			})
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.List(w, r, adminID)
				})
				r.Post("/", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.Create(w, r, adminID)
				})
				r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.Get(w, r, adminID, chi.URLParam(r, "id"))
				})
				r.Put("/{id}/settings", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.UpdateSettings(w, r, adminID, chi.URLParam(r, "id"))
				})
				r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.Delete(w, r, adminID, chi.URLParam(r, "id"))
				})
				r.Post("/{id}/deposit", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.Deposit(w, r, adminID, chi.URLParam(r, "id"))
				})
				r.Post("/{id}/withdraw", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.AccountHandler.Withdraw(w, r, adminID, chi.URLParam(r, "id"))
				})
				r.Get("/{id}/balances", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.TradeHandler.Balances(w, r, adminID, chi.URLParam(r, "id"))
				})
			})
			r.Get("/market/price/{symbol}", func(w http.ResponseWriter, r *http.Request) {
				d.MarketHandler.Price(w, r, chi.URLParam(r, "symbol"))
			})
			r.Get("/market/positions", func(w http.ResponseWriter, r *http.Request) {
				d.MarketHandler.Positions(w, r)
			})
			r.Route("/session", func(r chi.Router) {
				r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.SessionHandler.Start(w, r, adminID)
				})
				r.Post("/volume", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.SessionHandler.SetVolume(w, r, adminID)
				})
				r.Post("/confirm", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.SessionHandler.Confirm(w, r, adminID)
				})
				r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
					adminID, ok := AdminID(r)
					if !ok {
						httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
						return
					}
					d.SessionHandler.Cancel(w, r, adminID)
				})
			})
		})
	})
	return r
}
