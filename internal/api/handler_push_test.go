package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/model"
	"push-relay-backend/internal/store"
)

// recordingSender counts web-push sends without any real delivery.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(_ []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	r.mu.Lock()
	r.sent = append(r.sent, sub.Endpoint)
	r.mu.Unlock()
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var pushClaims = jwt.MapClaims{"student_id": "admin", "mayPush": true}

func pushRouter(s store.Store, claims jwt.MapClaims) (*gin.Engine, *recordingSender) {
	sender := &recordingSender{}
	dispatcher := dispatch.NewWithSender(s, sender, &webpush.Options{})
	handler := NewHandler(s, dispatcher, "")

	r := gin.New()
	authed := r.Group("/", fakeAuth(testTenant, claims))
	authed.POST("/broadcast", handler.PostBroadcast)
	authed.POST("/push", handler.PostPush)
	return r, sender
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func storeWith(subs ...model.Subscription) *fakeStore {
	return &fakeStore{
		listFn: func(_ context.Context, issuer string, identifiers []string) ([]model.Subscription, error) {
			var out []model.Subscription
			for _, sub := range subs {
				if sub.TenantIssuer != issuer {
					continue
				}
				if len(identifiers) == 0 {
					out = append(out, sub)
					continue
				}
				for _, id := range identifiers {
					if sub.Identifier == id {
						out = append(out, sub)
					}
				}
			}
			return out, nil
		},
	}
}

func tenantSub(identifier string) model.Subscription {
	return model.Subscription{
		TenantIssuer: testTenant.Issuer,
		Identifier:   identifier,
		Endpoint:     "https://push.example/" + identifier,
		P256DH:       "p256dh",
		Auth:         "auth",
	}
}

func TestPostBroadcast_DispatchesToAllSubscriptions(t *testing.T) {
	r, sender := pushRouter(storeWith(tenantSub("u1"), tenantSub("u2"), tenantSub("u3")), pushClaims)

	w := postJSON(r, "/broadcast", `{"payload": {"title": "hello"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Eventually(t, func() bool { return sender.count() == 3 },
		time.Second, 10*time.Millisecond, "all three deliveries should be attempted")
}

func TestPostBroadcast_NoSubscriptionsStillOK(t *testing.T) {
	r, sender := pushRouter(storeWith(), pushClaims)

	w := postJSON(r, "/broadcast", `{"payload": "text"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, sender.count())
}

func TestPostBroadcast_MissingPushClaim(t *testing.T) {
	r, sender := pushRouter(storeWith(tenantSub("u1")), jwt.MapClaims{"student_id": "admin"})

	w := postJSON(r, "/broadcast", `{"payload": "text"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"missing claim"}`, w.Body.String())
	assert.Equal(t, 0, sender.count())
}

func TestPostBroadcast_MissingPayload(t *testing.T) {
	r, _ := pushRouter(storeWith(tenantSub("u1")), pushClaims)

	w := postJSON(r, "/broadcast", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"field payload required"}`, w.Body.String())
}

func TestPostPush_SingleRecipient(t *testing.T) {
	r, sender := pushRouter(storeWith(tenantSub("u1"), tenantSub("u2")), pushClaims)

	w := postJSON(r, "/push", `{"payload": "x", "recipient": "u1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Eventually(t, func() bool { return sender.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestPostPush_SingleRecipientNotFound(t *testing.T) {
	r, sender := pushRouter(storeWith(tenantSub("u2")), pushClaims)

	w := postJSON(r, "/push", `{"payload": "x", "recipient": "u1"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"recipient not found"}`, w.Body.String())
	assert.Equal(t, 0, sender.count())
}

func TestPostPush_RecipientSetToleratesZeroTargets(t *testing.T) {
	// A plural recipient set that resolves to nothing is not an error,
	// unlike the single-recipient case.
	r, sender := pushRouter(storeWith(), pushClaims)

	w := postJSON(r, "/push", `{"payload": "x", "recipients": ["u1", "u2"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, sender.count())
}

func TestPostPush_RecipientSet(t *testing.T) {
	r, sender := pushRouter(storeWith(tenantSub("u1"), tenantSub("u2"), tenantSub("u3")), pushClaims)

	w := postJSON(r, "/push", `{"payload": "x", "recipients": ["u1", "u3"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Eventually(t, func() bool { return sender.count() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestPostPush_RecipientValidation(t *testing.T) {
	r, _ := pushRouter(storeWith(tenantSub("u1")), pushClaims)

	w := postJSON(r, "/push", `{"payload": "x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"field recipient or recipients required"}`, w.Body.String())

	w = postJSON(r, "/push", `{"payload": "x", "recipient": "u1", "recipients": ["u2"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostPush_StoreError(t *testing.T) {
	s := &fakeStore{
		listFn: func(context.Context, string, []string) ([]model.Subscription, error) {
			return nil, errors.New("db down")
		},
	}
	r, _ := pushRouter(s, pushClaims)

	w := postJSON(r, "/push", `{"payload": "x", "recipient": "u1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func TestPostPush_MissingPushClaim(t *testing.T) {
	r, _ := pushRouter(storeWith(tenantSub("u1")), jwt.MapClaims{"student_id": "admin", "mayPush": false})

	w := postJSON(r, "/push", `{"payload": "x", "recipient": "u1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	r := gin.New()
	handler := NewHandler(&fakeStore{}, nil, "test-public-key")
	r.GET("/vapid", handler.GetVAPIDPublicKey)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/vapid", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"test-public-key"}`, w.Body.String())
}

func TestGetVAPIDPublicKey_Unconfigured(t *testing.T) {
	r := gin.New()
	handler := NewHandler(&fakeStore{}, nil, "")
	r.GET("/vapid", handler.GetVAPIDPublicKey)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/vapid", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
