package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"push-relay-backend/internal/mw"
	"push-relay-backend/internal/store"
)

// subscriptionRequest mirrors the JSON shape of a browser PushSubscription.
type subscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256DH string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// PostSubscription registers or replaces the push subscription for the
// authenticated end user. The owning identifier comes from the token, using
// the tenant's configured identifier claim.
func (h *Handler) PostSubscription(c *gin.Context) {
	t := mw.TenantFrom(c)
	claims := mw.ClaimsFrom(c)
	if t == nil || claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "client not found"})
		return
	}

	identifier, ok := mw.Identifier(t, claims)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier not found"})
		return
	}

	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	keys := store.SubscriptionKeys{
		Endpoint: req.Endpoint,
		P256DH:   req.Keys.P256DH,
		Auth:     req.Keys.Auth,
	}
	if err := h.store.Upsert(c.Request.Context(), t.Issuer, identifier, keys); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}
