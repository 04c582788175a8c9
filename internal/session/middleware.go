package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gitshopapp/storefront/internal/logging"
)

type contextKey string

const ctxKey contextKey = "session"

// Middleware attaches the session, if the request carries one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if data, err := m.GetSession(r.Context(), r); err == nil {
			r = r.WithContext(WithData(r.Context(), data))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireShopper makes sure every request reaching next belongs to a shopper,
// issuing a fresh session to first-time visitors.
func (m *Manager) RequireShopper(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := m.Ensure(r.Context(), w, r)
			if err != nil {
				logging.FromContext(r.Context(), logger).Error("failed to start session", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			ctx := logging.With(WithData(r.Context(), data), logger, "shopper_id", data.ShopperID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithData(ctx context.Context, data *Data) context.Context {
	return context.WithValue(ctx, ctxKey, data)
}

// GetSessionFromContext retrieves session data from the request context.
func GetSessionFromContext(ctx context.Context) *Data {
	if ctx == nil {
		return nil
	}
	data, ok := ctx.Value(ctxKey).(*Data)
	if !ok {
		return nil
	}
	return data
}

// ShopperID returns the shopper bound to ctx, or "" when there is none.
func ShopperID(ctx context.Context) string {
	if data := GetSessionFromContext(ctx); data != nil {
		return data.ShopperID
	}
	return ""
}
