package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/mw"
	"push-relay-backend/internal/tenant"
)

// addressingMode selects the target set of a push request. It is decided by
// which request fields are present, never by a sentinel recipient value.
type addressingMode int

const (
	// modeBroadcast targets every subscription of the tenant.
	modeBroadcast addressingMode = iota
	// modeSingle targets one explicitly named recipient; an empty target
	// set is an error because naming one recipient implies it exists.
	modeSingle
	// modeSet targets a caller-supplied recipient set; resolving to zero
	// targets is tolerated.
	modeSet
)

type pushRequest struct {
	Payload    json.RawMessage `json:"payload"`
	Recipient  string          `json:"recipient"`
	Recipients []string        `json:"recipients"`
}

// PostBroadcast delivers a payload to every subscription of the tenant.
// Requires the mayPush capability claim.
func (h *Handler) PostBroadcast(c *gin.Context) {
	t, req, ok := h.authorizePush(c)
	if !ok {
		return
	}
	h.dispatchTo(c, t, req, modeBroadcast, nil)
}

// PostPush delivers a payload to one named recipient or a recipient set.
// Requires the mayPush capability claim.
func (h *Handler) PostPush(c *gin.Context) {
	t, req, ok := h.authorizePush(c)
	if !ok {
		return
	}

	var mode addressingMode
	var identifiers []string
	switch {
	case req.Recipient != "" && len(req.Recipients) > 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient and recipients are mutually exclusive"})
		return
	case req.Recipient != "":
		mode = modeSingle
		identifiers = []string{req.Recipient}
	case len(req.Recipients) > 0:
		mode = modeSet
		identifiers = req.Recipients
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "field recipient or recipients required"})
		return
	}

	h.dispatchTo(c, t, req, mode, identifiers)
}

func (h *Handler) dispatchTo(c *gin.Context, t *tenant.Tenant, req *pushRequest, mode addressingMode, identifiers []string) {
	subs, err := h.store.List(c.Request.Context(), t.Issuer, identifiers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(subs) == 0 && mode == modeSingle {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		return
	}

	// The response only reflects that dispatch was initiated; individual
	// delivery outcomes are handled in the background.
	dispatch.LogResults(h.dispatcher.Dispatch(t.Issuer, subs, req.Payload))

	c.Status(http.StatusOK)
}

// authorizePush performs the shared checks of the push-triggering endpoints:
// resolved tenant, mayPush capability, and a present payload.
func (h *Handler) authorizePush(c *gin.Context) (*tenant.Tenant, *pushRequest, bool) {
	t := mw.TenantFrom(c)
	claims := mw.ClaimsFrom(c)
	if t == nil || claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "client not found"})
		return nil, nil, false
	}

	if !mw.MayPush(claims) {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing claim"})
		return nil, nil, false
	}

	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if len(req.Payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field payload required"})
		return nil, nil, false
	}

	return t, &req, true
}
