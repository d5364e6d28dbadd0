// Package store holds the two transient key-value stores used by vote admission:
// the cooldown store (per site and IP "next eligible" instants) and the
// consume-once pingback flag store.
package store

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultCooldownNamespace prefixes cooldown keys
	DefaultCooldownNamespace = "votes.site"
	// PingbackNamespace prefixes pingback flag keys
	PingbackNamespace = "vote.sites"
)

// CooldownStore maps a key to an absolute expiry instant.
// A value whose instant has passed reads as absent.
type CooldownStore interface {
	PutUntil(ctx context.Context, key string, until time.Time) error
	Get(ctx context.Context, key string) (time.Time, bool, error)
}

// FlagStore records single-use flags. Consume returns true at most once per Mark.
type FlagStore interface {
	Mark(ctx context.Context, key string, ttl time.Duration) error
	Consume(ctx context.Context, key string) (bool, error)
}

// CooldownKey builds the {namespace}.{site_id}.{ip} key
func CooldownKey(namespace string, siteID int, ip string) string {
	if namespace == "" {
		namespace = DefaultCooldownNamespace
	}
	return fmt.Sprintf("%s.%d.%s", namespace, siteID, ip)
}

// PingbackKey builds the key a pingback for domain and ip is stored under
func PingbackKey(domain, ip string) string {
	return fmt.Sprintf("%s.%s.%s", PingbackNamespace, domain, ip)
}
