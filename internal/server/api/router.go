package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter builds the route table.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestID, h.recoverer, h.accessLog)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/sync", h.SyncSession).Methods(http.MethodPost)
	api.HandleFunc("/auth/exchange", h.ExchangeCode).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", h.SessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/auth/refresh", h.RefreshSession).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", h.SignOut).Methods(http.MethodPost)

	api.HandleFunc("/otp/email/send", h.SendEmailOTP).Methods(http.MethodPost)
	api.HandleFunc("/otp/email/verify", h.VerifyEmailOTP).Methods(http.MethodPost)
	api.HandleFunc("/otp/phone/send", h.SendPhoneOTP).Methods(http.MethodPost)
	api.HandleFunc("/otp/phone/verify", h.VerifyPhoneOTP).Methods(http.MethodPost)

	api.HandleFunc("/admin/resync-pin", h.ResyncPin).Methods(http.MethodPost)
	api.HandleFunc("/pin/signin", h.PinSignIn).Methods(http.MethodPost)
	api.Handle("/pin/setup", h.guard.API(http.HandlerFunc(h.PinSetup))).Methods(http.MethodPost)
	api.Handle("/me", h.guard.API(http.HandlerFunc(h.Me))).Methods(http.MethodGet)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Handle("/account", h.guard.Page(http.HandlerFunc(h.AccountPage))).Methods(http.MethodGet)
	r.HandleFunc("/login", h.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	return r
}
