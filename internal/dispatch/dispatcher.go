package dispatch

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"

	"push-relay-backend/internal/model"
	"push-relay-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender implementation using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Result records the delivery outcome for a single subscription. Pruned is
// set when the transport reported the endpoint permanently gone and the
// subscription was removed from the store.
type Result struct {
	Endpoint string
	Err      error
	Pruned   bool
}

// Dispatcher fans a payload out to stored subscriptions and reconciles the
// store with the delivery outcomes.
type Dispatcher struct {
	store   store.Store
	sender  Sender
	options *webpush.Options
}

// New creates a Dispatcher delivering via the real web-push transport.
func New(s store.Store, options *webpush.Options) *Dispatcher {
	return &Dispatcher{store: s, sender: &WebPushSender{}, options: options}
}

// NewWithSender creates a Dispatcher with a custom Sender, for tests.
func NewWithSender(s store.Store, sender Sender, options *webpush.Options) *Dispatcher {
	return &Dispatcher{store: s, sender: sender, options: options}
}

// Dispatch delivers the payload to every subscription concurrently. Each
// delivery is independent: one failure never aborts or rolls back siblings,
// and request cancellation does not propagate into in-flight sends. The
// returned channel receives one Result per subscription and is closed once
// all deliveries have settled; callers are free not to drain it before
// responding (see LogResults).
func (d *Dispatcher) Dispatch(issuer string, subs []model.Subscription, payload []byte) <-chan Result {
	results := make(chan Result, len(subs))

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub model.Subscription) {
			defer wg.Done()
			results <- d.deliver(issuer, sub, payload)
		}(sub)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// LogResults drains a dispatch result channel in the background, logging
// failures. It returns immediately.
func LogResults(results <-chan Result) {
	go func() {
		for res := range results {
			switch {
			case res.Pruned:
				log.Printf("dispatch: pruned stale subscription %s", res.Endpoint)
			case res.Err != nil:
				log.Printf("dispatch: delivery to %s failed: %v", res.Endpoint, res.Err)
			}
		}
	}()
}

func (d *Dispatcher) deliver(issuer string, sub model.Subscription, payload []byte) Result {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(payload, wpSub, d.options)
	if err != nil {
		// Transient transport failure: the subscription stays; no retry
		// is scheduled here.
		return Result{Endpoint: sub.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	// 404/410 from the push service means the endpoint is permanently gone.
	// Cleanup is best effort and its failure never surfaces to the caller.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := d.store.Remove(context.Background(), issuer, sub.Endpoint); err != nil {
			log.Printf("dispatch: failed to remove stale subscription %s: %v", sub.Endpoint, err)
		}
		return Result{Endpoint: sub.Endpoint, Pruned: true}
	}

	return Result{Endpoint: sub.Endpoint}
}
