package resources

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/udisondev/l2client/internal/wire"
)

type countingFetcher struct {
	calls atomic.Int32
	blob  []byte
}

func (f *countingFetcher) Fetch(ctx context.Context, archiveID, urlSuffix string) ([]byte, error) {
	f.calls.Add(1)
	return f.blob, nil
}

func TestLoadDeduplicatesSharedArchive(t *testing.T) {
	fetcher := &countingFetcher{blob: []byte("archive-bytes")}
	loader := New(Config{ConfigFetchAttemptsMax: 1, ConfigFetchTimeout: time.Second}, fetcher, nil)

	correction := wire.ResourceCorrection{
		Slots: map[string]wire.ArchiveCorrection{
			"Player":   {ArchiveID: "A", URLSuffix: "S"},
			"Tutorial": {ArchiveID: "A", URLSuffix: "S"},
		},
	}

	slots, err := loader.Load(context.Background(), correction, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetcher calls = %d, want 1 (de-duplicated)", got)
	}
}

func TestLoadCallsActivateWithAllSlots(t *testing.T) {
	fetcher := &countingFetcher{blob: []byte("bytes")}
	loader := New(Config{ConfigFetchAttemptsMax: 1, ConfigFetchTimeout: time.Second}, fetcher, nil)

	correction := wire.ResourceCorrection{
		Slots: map[string]wire.ArchiveCorrection{"Player": {ArchiveID: "A"}},
	}

	var activated map[string]Slot
	_, err := loader.Load(context.Background(), correction, func(slots map[string]Slot) error {
		activated = slots
		return nil
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(activated) != 1 {
		t.Fatalf("activated slots = %d, want 1", len(activated))
	}
}

func TestLoadPropagatesActivationFailure(t *testing.T) {
	fetcher := &countingFetcher{blob: []byte("bytes")}
	loader := New(Config{ConfigFetchAttemptsMax: 1, ConfigFetchTimeout: time.Second}, fetcher, nil)

	correction := wire.ResourceCorrection{
		Slots: map[string]wire.ArchiveCorrection{"Player": {ArchiveID: "A"}},
	}

	_, err := loader.Load(context.Background(), correction, func(slots map[string]Slot) error {
		return errBadLanguage
	})
	if err == nil {
		t.Fatal("Load() error = nil, want activation failure propagated")
	}
}

var errBadLanguage = &testError{"BadLanguage"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestCacheCorruptionAutoPurgesAndAllowsRefetch(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)

	if err := cache.Put("k", []byte("good-bytes")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("Get() = false right after Put()")
	}

	// Corrupt the stored entry directly on disk.
	path := cache.pathFor("k")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.Get("k"); ok {
		t.Fatal("Get() = true for corrupted entry, want false")
	}

	// The bad entry must have been purged so a subsequent Put succeeds
	// cleanly.
	if err := cache.Put("k", []byte("fresh-bytes")); err != nil {
		t.Fatalf("Put() after purge error = %v", err)
	}
	got, ok := cache.Get("k")
	if !ok || string(got) != "fresh-bytes" {
		t.Fatalf("Get() after refetch = %q, %v", got, ok)
	}
}
