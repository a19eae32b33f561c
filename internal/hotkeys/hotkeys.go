// Package hotkeys tracks which match/odds identifiers are currently "hot" —
// recently requested and therefore worth polling on the 1-second tier.
package hotkeys

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oddscache/oddscache/internal/cachecore"
)

// Prefix namespaces every hot-key record, per spec's persisted state layout.
const Prefix = "hot:odds:"

// DefaultSportID is used when a legacy hot record carries no metadata —
// tolerating pre-unification schedulers' records per spec's metadata
// tolerance requirement.
const DefaultSportID = 0

// Metadata is the payload carried by a hot-key record.
type Metadata struct {
	GameID    string    `json:"gameId"`
	SportID   int       `json:"sportId"`
	RenewedAt time.Time `json:"renewedAt"`
}

// Record pairs an id with its metadata, as returned by List.
type Record struct {
	ID       string
	Metadata Metadata
}

// Registry is the HotKeyRegistry: a view over CacheStore's hot:odds:* key
// prefix. It owns no storage of its own — records age out via the store's
// own TTL expiry, so there is no explicit remove. Because a stale-serving
// store keeps a key past its ttl, List also skips records whose RenewedAt
// is more than hotTTL ago.
type Registry struct {
	store  cachecore.Store
	hotTTL time.Duration
}

// New builds a Registry backed by store, aging records after hotTTL (spec
// default 30s).
func New(store cachecore.Store, hotTTL time.Duration) *Registry {
	return &Registry{store: store, hotTTL: hotTTL}
}

// Mark renews the hot record for id, idempotently. Two Mark calls inside
// hotTTL keep the record continuously present.
func (r *Registry) Mark(ctx context.Context, id string, sportID int) error {
	md := Metadata{GameID: id, SportID: sportID, RenewedAt: time.Now()}
	payload, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, Prefix+id, payload, r.hotTTL)
}

// List returns every non-expired hot record. Records with no metadata (or
// metadata from a legacy schema that fails to unmarshal) are tolerated and
// returned with DefaultSportID rather than dropped.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	ids, err := r.store.KeysMatching(ctx, Prefix+"*")
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(ids))
	for _, key := range ids {
		id := key[len(Prefix):]
		raw, ok := r.store.Get(ctx, key)
		if !ok {
			continue
		}
		var md Metadata
		if err := json.Unmarshal(raw, &md); err != nil || md.GameID == "" {
			md = Metadata{GameID: id, SportID: DefaultSportID, RenewedAt: time.Now()}
		} else if !md.RenewedAt.IsZero() && time.Since(md.RenewedAt) > r.hotTTL {
			continue
		}
		out = append(out, Record{ID: id, Metadata: md})
	}
	return out, nil
}

// HotTTL reports the configured aging window.
func (r *Registry) HotTTL() time.Duration { return r.hotTTL }
