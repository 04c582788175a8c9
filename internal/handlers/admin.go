package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/services"
)

type deliveryRequest struct {
	BeingDelivered *bool `json:"being_delivered"`
	Received       *bool `json:"received"`
}

// RequireAdmin checks the bearer token against ADMIN_API_TOKEN. Admin routes
// are closed when no token is configured.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meter := observability.MeterFromContext(r.Context())
		expected := ""
		if h.config != nil {
			expected = h.config.AdminAPIToken
		}
		if expected == "" {
			meter.Count("security.admin.blocked", 1, sentry.WithAttributes(attribute.String("reason", "disabled")))
			http.NotFound(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
			meter.Count("security.admin.blocked", 1, sentry.WithAttributes(attribute.String("reason", "invalid_token")))
			h.loggerFromContext(r.Context()).Warn("rejected admin request", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) AdminGrantRefunds(w http.ResponseWriter, r *http.Request) {
	granted, err := h.adminService.GrantRequestedRefunds(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]int64{"granted": granted})
}

func (h *Handlers) AdminUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.adminService.UpdateDelivery(r.Context(), services.DeliveryInput{
		RefCode:        mux.Vars(r)["ref"],
		BeingDelivered: req.BeingDelivered,
		Received:       req.Received,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}
