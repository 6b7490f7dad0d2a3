// Package resources implements the Resource Loader (C7): given a
// ResourceCorrection, materializes every required archive from a
// cache-first blob provider, then activates and specializes them.
package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// ArchiveFetcher retrieves one content-addressed archive blob.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, archiveID, urlSuffix string) ([]byte, error)
}

// HTTPArchiveFetcher fetches archives from the CDN per spec §6:
// `GET {cdn}/GameConfig/{archive}[?{urlSuffix}]`.
type HTTPArchiveFetcher struct {
	Client  *http.Client
	CDNBase string
}

// Fetch implements ArchiveFetcher.
func (f *HTTPArchiveFetcher) Fetch(ctx context.Context, archiveID, urlSuffix string) ([]byte, error) {
	url := fmt.Sprintf("%s/GameConfig/%s", f.CDNBase, archiveID)
	if urlSuffix != "" {
		url += "?" + urlSuffix
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resources: GameConfig fetch %s: status %d", archiveID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// MemoryArchiveFetcher serves archives from an in-memory map, used by
// offline mode and tests.
type MemoryArchiveFetcher struct {
	Archives map[string][]byte
}

// Fetch implements ArchiveFetcher.
func (f *MemoryArchiveFetcher) Fetch(ctx context.Context, archiveID, urlSuffix string) ([]byte, error) {
	key := archiveID
	if urlSuffix != "" {
		key += "?" + urlSuffix
	}
	blob, ok := f.Archives[key]
	if !ok {
		return nil, fmt.Errorf("resources: unknown archive %q", key)
	}
	return blob, nil
}
