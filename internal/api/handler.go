package api

import (
	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	dispatcher     *dispatch.Dispatcher
	vapidPublicKey string
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, dispatcher *dispatch.Dispatcher, vapidPublicKey string) *Handler {
	return &Handler{
		store:          s,
		dispatcher:     dispatcher,
		vapidPublicKey: vapidPublicKey,
	}
}
