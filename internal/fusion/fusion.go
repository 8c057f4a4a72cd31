// Package fusion deduplicates scored events before export.
//
// Two events fuse to the same key when they describe the same business
// opening: same city, same name, same address, same predicted open week.
// A claimed key suppresses duplicates for a sliding TTL window; after the
// window expires the same business is treated as a new signal.
package fusion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicsignal/civicsignal/internal/models"
)

// DefaultTTL is the dedup suppression window.
const DefaultTTL = 7 * 24 * time.Hour

// Key returns the deduplication fingerprint for an event. Name and
// address are case-folded so capitalization differences between datasets
// do not defeat dedup.
func Key(ev *models.Event) string {
	base := strings.Join([]string{
		ev.City,
		strings.ToLower(ev.Name),
		strings.ToLower(ev.Address),
		ev.PredictedOpenWeek,
	}, "|")
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:8])
}

// Deduper tracks claimed fusion keys in Redis.
type Deduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduper creates a Deduper storing keys under {namespace}:fusion:.
// A non-positive ttl falls back to DefaultTTL.
func NewDeduper(client *redis.Client, namespace string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{
		client: client,
		prefix: namespace + ":fusion:",
		ttl:    ttl,
	}
}

// Claim atomically marks key as seen, recording owner (an event id) as
// the claim value for operator inspection. It returns true when this call
// made the claim and false when the key was already held, meaning the
// event is a duplicate within the TTL window.
func (d *Deduper) Claim(ctx context.Context, key, owner string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, owner, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim fusion key %s: %w", key, err)
	}
	return ok, nil
}

// Owner returns the event id that claimed key, or "" when the key is not
// currently held.
func (d *Deduper) Owner(ctx context.Context, key string) (string, error) {
	val, err := d.client.Get(ctx, d.prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read fusion key %s: %w", key, err)
	}
	return val, nil
}

// TTL returns the configured suppression window.
func (d *Deduper) TTL() time.Duration {
	return d.ttl
}
