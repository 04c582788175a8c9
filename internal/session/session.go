// Package session tracks anonymous shoppers with a cookie-bound session.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "storefront_session"
	ttl        = 30 * 24 * time.Hour
)

var (
	ErrNoSession      = errors.New("no session cookie")
	ErrSessionExpired = errors.New("session not found or expired")
)

// Data is what a session remembers about a shopper. ShopperID is the user
// id every cart, checkout and payment call is keyed by.
type Data struct {
	ShopperID string `json:"shopper_id"`
	CreatedAt int64  `json:"created_at"`
}

func (d *Data) expired(now time.Time) bool {
	return now.Sub(time.Unix(d.CreatedAt, 0)) > ttl
}

type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// Manager issues and resolves shopper sessions.
type Manager struct {
	store  Store
	secure bool
	now    func() time.Time
}

func NewManager(store Store, secure bool) *Manager {
	return &Manager{store: store, secure: secure, now: time.Now}
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// CreateSession starts a session for a new shopper and sets the cookie.
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter) (*Data, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sessionID := uuid.NewString()
	data := Data{ShopperID: uuid.NewString(), CreatedAt: m.now().Unix()}
	m.store.Set(ctx, sessionID, &data, ttl)
	m.setCookie(w, sessionID, int(ttl.Seconds()))
	return &data, nil
}

// GetSession resolves the session named by the request cookie.
func (m *Manager) GetSession(ctx context.Context, r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	if ctx == nil {
		ctx = r.Context()
	}

	data, ok := m.store.Get(ctx, cookie.Value)
	if !ok {
		return nil, ErrSessionExpired
	}
	if data.expired(m.now()) {
		m.store.Delete(ctx, cookie.Value)
		return nil, ErrSessionExpired
	}
	return data, nil
}

// Ensure returns the request's session, starting a new one when there is none.
func (m *Manager) Ensure(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Data, error) {
	if data, err := m.GetSession(ctx, r); err == nil {
		return data, nil
	}
	return m.CreateSession(ctx, w)
}

// DestroySession forgets the shopper. Their orders stay in the store but
// nothing links the browser to them any more.
func (m *Manager) DestroySession(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		m.store.Delete(ctx, cookie.Value)
	}
	m.setCookie(w, "", -1)
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
