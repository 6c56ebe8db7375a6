package httpx

import (
	"context"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
	"time"
)

// Authentication happens upstream; the gateway forwards the caller's id and role.
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIdempotencyKey = "Idempotency-Key"

	roleAdmin = "admin"
)

type ctxKey int

const callerKey ctxKey = iota

type caller struct {
	UserID string
	Admin  bool
}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey).(caller)
	return c
}

func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := caller{
			UserID: r.Header.Get(HeaderUserID),
			Admin:  r.Header.Get(HeaderUserRole) == roleAdmin,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, c)))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r.Context()).UserID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r.Context()).Admin {
			writeError(w, http.StatusForbidden, "forbidden", "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func NewRouter(orders *OrdersHandler, carts *CartHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(identify)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if orders != nil {
		orders.Register(r)
	}
	if carts != nil {
		carts.Register(r)
	}
	return r
}
