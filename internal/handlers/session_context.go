package handlers

import (
	"net/http"

	"github.com/gitshopapp/storefront/internal/session"
)

// shopperID is only empty when a route forgot RequireShopper.
func shopperID(r *http.Request) string {
	return session.ShopperID(r.Context())
}

// CreateSession hands out a shopper session, or echoes the current one.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	data := session.GetSessionFromContext(r.Context())
	if data == nil {
		var err error
		if data, err = h.sessionManager.Ensure(r.Context(), w, r); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	h.writeJSON(w, r, http.StatusCreated, map[string]string{"shopper_id": data.ShopperID})
}

// EndSession forgets the shopper's cookie. A later request starts over with
// a new shopper and an empty cart.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.DestroySession(r.Context(), w, r)
	w.WriteHeader(http.StatusNoContent)
}
