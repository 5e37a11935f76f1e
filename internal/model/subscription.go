package model

import "time"

// Subscription holds one browser push subscription, keyed by the tenant that
// registered it and the end-user identifier it belongs to. The composite
// primary key guarantees at most one live subscription per (tenant, identifier)
// pair; re-registration overwrites rather than duplicates.
type Subscription struct {
	TenantIssuer string `gorm:"primaryKey;size:256" json:"-"`
	Identifier   string `gorm:"primaryKey;size:256" json:"identifier"`
	Endpoint     string `gorm:"not null" json:"endpoint"`
	P256DH       string `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth         string `gorm:"not null" json:"auth"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
