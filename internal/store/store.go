package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"push-relay-backend/internal/model"
)

// SubscriptionKeys is the opaque push descriptor registered by a device. Its
// fields are meaningful only to the web-push transport.
type SubscriptionKeys struct {
	Endpoint string
	P256DH   string
	Auth     string
}

// Store defines the tenant-scoped subscription operations. Every method takes
// the tenant issuer and applies it to the query, so no call can cross a
// tenant partition.
type Store interface {
	// Upsert creates or overwrites the subscription for (issuer, identifier).
	Upsert(ctx context.Context, issuer, identifier string, keys SubscriptionKeys) error
	// List returns the tenant's subscriptions for the given identifiers.
	// An empty identifier set is the broadcast read: every subscription of
	// the tenant. Targeted callers must always pass a non-empty set.
	List(ctx context.Context, issuer string, identifiers []string) ([]model.Subscription, error)
	// Remove deletes the tenant's subscription with the given endpoint.
	// Used only by the dispatcher's stale-endpoint cleanup.
	Remove(ctx context.Context, issuer, endpoint string) error
	// DB exposes the underlying handle for migrations and integration tests.
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Upsert(ctx context.Context, issuer, identifier string, keys SubscriptionKeys) error {
	sub := model.Subscription{
		TenantIssuer: issuer,
		Identifier:   identifier,
		Endpoint:     keys.Endpoint,
		P256DH:       keys.P256DH,
		Auth:         keys.Auth,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_issuer"}, {Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"endpoint", "p256dh", "auth", "updated_at"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for %s: %w", identifier, err)
	}
	return nil
}

func (s *gormStore) List(ctx context.Context, issuer string, identifiers []string) ([]model.Subscription, error) {
	q := s.db.WithContext(ctx).Where("tenant_issuer = ?", issuer)
	if len(identifiers) > 0 {
		q = q.Where("identifier IN ?", identifiers)
	}

	var subs []model.Subscription
	if err := q.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *gormStore) Remove(ctx context.Context, issuer, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("tenant_issuer = ? AND endpoint = ?", issuer, endpoint).
		Delete(&model.Subscription{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	return nil
}
