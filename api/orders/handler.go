// Package orders exposes the provider-facing HTTP API: order intake,
// lookup and cancellation.
package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/citydrop/dispatch/core/dispatch"
	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
)

// Config holds the HTTP API settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Token   string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8081"
	}
}

type createRequest struct {
	ID         string         `json:"id,omitempty"`
	ProviderID string         `json:"provider_id"`
	Pickup     model.GeoPoint `json:"pickup"`
	Dropoff    model.GeoPoint `json:"dropoff"`
	ExpiresAt  int64          `json:"expires_at,omitempty"`
}

type orderResponse struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	DriverID   string         `json:"driver_id,omitempty"`
	ProviderID string         `json:"provider_id,omitempty"`
	Pickup     model.GeoPoint `json:"pickup"`
	Dropoff    model.GeoPoint `json:"dropoff"`
	CreatedAt  int64          `json:"created_at"`
	ExpiresAt  int64          `json:"expires_at,omitempty"`
}

type cancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Code      string `json:"code,omitempty"`
}

// NewHandler returns the HTTP handler for the order API. Requests must
// include "Bearer <token>" in the Authorization header when token is
// non-empty.
func NewHandler(ordersStore store.OrderStore, mgr *dispatch.Manager, token string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if req.ProviderID == "" {
			http.Error(w, "provider_id required", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		o := model.Order{
			ID:         req.ID,
			ProviderID: req.ProviderID,
			Pickup:     req.Pickup,
			Dropoff:    req.Dropoff,
			CreatedAt:  time.Now().UnixMilli(),
			ExpiresAt:  req.ExpiresAt,
		}
		if err := ordersStore.Create(r.Context(), o); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				http.Error(w, "order already exists", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeOrder(w, http.StatusCreated, o)
	})

	mux.HandleFunc("GET /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		o, err := ordersStore.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeOrder(w, http.StatusOK, o)
	})

	mux.HandleFunc("POST /api/orders/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		res, err := mgr.Cancel(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		status := http.StatusOK
		if !res.Cancelled {
			status = http.StatusConflict
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(cancelResponse{Cancelled: res.Cancelled, Code: res.Code})
	})

	return withAuth(token, mux)
}

func withAuth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeOrder(w http.ResponseWriter, status int, o model.Order) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(orderResponse{
		ID:         o.ID,
		Status:     o.Status.String(),
		DriverID:   o.DriverID,
		ProviderID: o.ProviderID,
		Pickup:     o.Pickup,
		Dropoff:    o.Dropoff,
		CreatedAt:  o.CreatedAt,
		ExpiresAt:  o.ExpiresAt,
	})
}
