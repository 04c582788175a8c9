package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/services"
)

type cartOperation func(ctx context.Context, userID, slug string) (*services.OrderSummary, error)

type cartResponse struct {
	Message string                 `json:"message"`
	Cart    *services.OrderSummary `json:"cart"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cartService.GetCart(r.Context(), shopperID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, summary)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	h.cartLine(w, r, h.cartService.AddItem, func(summary *services.OrderSummary, slug string) string {
		for _, line := range summary.Lines {
			if line.Slug == slug && line.Quantity > 1 {
				return "This item quantity was updated."
			}
		}
		return "This item was added to your cart."
	})
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.cartLine(w, r, h.cartService.RemoveItem, func(*services.OrderSummary, string) string {
		return "This item quantity was updated."
	})
}

func (h *Handlers) RemoveAllFromCart(w http.ResponseWriter, r *http.Request) {
	h.cartLine(w, r, h.cartService.RemoveItemCompletely, func(*services.OrderSummary, string) string {
		return "This item was removed from your cart."
	})
}

func (h *Handlers) cartLine(w http.ResponseWriter, r *http.Request, op cartOperation, message func(*services.OrderSummary, string) string) {
	slug := mux.Vars(r)["slug"]
	summary, err := op(r.Context(), shopperID(r), slug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, cartResponse{Message: message(summary, slug), Cart: summary})
}
