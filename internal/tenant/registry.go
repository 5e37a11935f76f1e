package tenant

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"push-relay-backend/config"
)

// DefaultIdentifierClaim is used when a tenant does not configure its own
// claim name for the end-user identifier.
const DefaultIdentifierClaim = "sub"

// Tenant is one registered client issuer. PublicKey is nil when the startup
// key fetch failed; every token claiming that issuer then fails verification.
type Tenant struct {
	Issuer          string
	IdentifierClaim string
	PublicKey       *rsa.PublicKey
}

// Registry is an immutable issuer -> tenant mapping built once at startup.
type Registry struct {
	tenants map[string]*Tenant
}

// KeyFetcher retrieves raw public key material from a URL. Satisfied by
// *http.Client via HTTPKeyFetcher.
type KeyFetcher interface {
	FetchKey(ctx context.Context, url string) ([]byte, error)
}

// HTTPKeyFetcher fetches key material with a plain unauthenticated GET.
type HTTPKeyFetcher struct {
	Client *http.Client
}

// FetchKey performs the GET and returns the response body.
func (f *HTTPKeyFetcher) FetchKey(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// LoadRegistry builds the registry for the configured tenants, fetching every
// tenant's public key concurrently. It returns only after all fetches have
// settled; a failed fetch or unparsable key for one tenant is logged and
// recorded as key-absent without affecting the others.
func LoadRegistry(ctx context.Context, tenants []config.TenantConfig, fetcher KeyFetcher) *Registry {
	reg := &Registry{tenants: make(map[string]*Tenant, len(tenants))}

	var wg sync.WaitGroup
	for _, tc := range tenants {
		claim := tc.IdentifierClaim
		if claim == "" {
			claim = DefaultIdentifierClaim
		}
		t := &Tenant{Issuer: tc.Issuer, IdentifierClaim: claim}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			raw, err := fetcher.FetchKey(ctx, url)
			if err != nil {
				log.Printf("tenant %s: public key fetch failed: %v", t.Issuer, err)
				return
			}
			key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
			if err != nil {
				log.Printf("tenant %s: public key parse failed: %v", t.Issuer, err)
				return
			}
			// Each goroutine writes its own tenant's key; wg.Wait orders
			// the writes before any Lookup.
			t.PublicKey = key
		}(tc.PublicKeyURL)

		reg.tenants[tc.Issuer] = t
	}
	wg.Wait()

	return reg
}

// Lookup returns the tenant registered for the given issuer.
func (r *Registry) Lookup(issuer string) (*Tenant, bool) {
	t, ok := r.tenants[issuer]
	return t, ok
}

// Issuers returns the registered issuer identities, for logging at startup.
func (r *Registry) Issuers() []string {
	out := make([]string, 0, len(r.tenants))
	for iss := range r.tenants {
		out = append(out, iss)
	}
	return out
}
