package resources

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/udisondev/l2client/internal/wire"
)

// Config bounds the loader's retry policy (spec §4.3).
type Config struct {
	ConfigFetchAttemptsMax int
	ConfigFetchTimeout     time.Duration
}

// Slot is one fetched/activated resource, keyed by slot identifier
// (e.g. "Player", "Localization").
type Slot struct {
	ArchiveID string
	URLSuffix string
	Blob      []byte
}

// ActivateFunc applies side effects from a freshly loaded set of slots
// (e.g. "switch active language"). Errors translate to
// classify.TransientConfigFetchFailed{source=Activation}.
type ActivateFunc func(slots map[string]Slot) error

// SpecializeFunc produces the per-player specialized config from the
// activated slots and the session-start success payload.
type SpecializeFunc func(slots map[string]Slot, sessionStartSuccess *wire.SessionStartSuccess) error

// Loader materializes a ResourceCorrection's archives. A Loader is
// reset (a fresh one constructed) on every (re)attempt, per spec
// Lifecycles.
type Loader struct {
	cfg     Config
	fetcher ArchiveFetcher
	cache   *Cache
	group   singleflight.Group
}

// New returns a Loader for one attempt.
func New(cfg Config, fetcher ArchiveFetcher, cache *Cache) *Loader {
	return &Loader{cfg: cfg, fetcher: fetcher, cache: cache}
}

// Load fetches every slot in correction, de-duplicating downloads that
// share an (archiveId, urlSuffix) key within this attempt (spec
// invariant 6), then calls activate.
func (l *Loader) Load(ctx context.Context, correction wire.ResourceCorrection, activate ActivateFunc) (map[string]Slot, error) {
	slots := make(map[string]Slot, len(correction.Slots))
	fetched := make(map[string][]byte, len(correction.Slots))

	for name, ac := range correction.Slots {
		key := dedupKey(ac.ArchiveID, ac.URLSuffix)
		blob, ok := fetched[key]
		if !ok {
			var err error
			blob, err = l.fetchDeduped(ctx, ac.ArchiveID, ac.URLSuffix)
			if err != nil {
				return nil, fmt.Errorf("resources: slot %q: %w", name, err)
			}
			fetched[key] = blob
		}
		slots[name] = Slot{ArchiveID: ac.ArchiveID, URLSuffix: ac.URLSuffix, Blob: blob}
	}

	if activate != nil {
		if err := activate(slots); err != nil {
			return nil, fmt.Errorf("resources: activation failed: %w", err)
		}
	}

	return slots, nil
}

// Specialize runs fn over the activated slots and the session-start
// success payload, producing the per-player specialized config (spec
// §4.3 "specialize" step). It is a separate call from Load because the
// session-start success payload specialize needs does not exist until
// after the server has accepted the session, while Load/activate run
// earlier, against a correction.
func (l *Loader) Specialize(slots map[string]Slot, sessionStartSuccess *wire.SessionStartSuccess, fn SpecializeFunc) error {
	if fn == nil {
		return nil
	}
	return fn(slots, sessionStartSuccess)
}

// dedupKey identifies an in-flight/cached download.
func dedupKey(archiveID, urlSuffix string) string {
	return archiveID + "\x00" + urlSuffix
}

// fetchDeduped shares one in-flight fetch across all callers requesting
// the same (archiveId, urlSuffix) this attempt, retrying up to
// ConfigFetchAttemptsMax times, each bounded by ConfigFetchTimeout.
func (l *Loader) fetchDeduped(ctx context.Context, archiveID, urlSuffix string) ([]byte, error) {
	key := dedupKey(archiveID, urlSuffix)

	v, err, _ := l.group.Do(key, func() (any, error) {
		if l.cache != nil {
			if blob, ok := l.cache.Get(key); ok {
				return blob, nil
			}
		}

		var lastErr error
		attempts := l.cfg.ConfigFetchAttemptsMax
		if attempts <= 0 {
			attempts = 1
		}
		for i := 0; i < attempts; i++ {
			fetchCtx, cancel := context.WithTimeout(ctx, l.cfg.ConfigFetchTimeout)
			blob, ferr := l.fetcher.Fetch(fetchCtx, archiveID, urlSuffix)
			cancel()
			if ferr == nil {
				if l.cache != nil {
					_ = l.cache.Put(key, blob)
				}
				return blob, nil
			}
			lastErr = ferr
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
