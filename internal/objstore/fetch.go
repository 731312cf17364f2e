package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// BatchFetcher downloads multiple snapshot objects in parallel, caching them
// under a destination directory so repeated imports skip files already
// fetched.
type BatchFetcher struct {
	store       Store
	concurrency int
	destDir     string
}

// FetchResult contains the outcome of a batch fetch operation.
type FetchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// NewBatchFetcher creates a new batch fetcher.
// store: the Store to download from
// concurrency: maximum number of parallel downloads
// destDir: directory to place downloaded files (empty = current directory)
func NewBatchFetcher(store Store, concurrency int, destDir string) *BatchFetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchFetcher{
		store:       store,
		concurrency: concurrency,
		destDir:     destDir,
	}
}

// Fetch downloads the given objects in parallel. Failures are reported
// per object; one failed download does not abort the rest.
func (f *BatchFetcher) Fetch(ctx context.Context, objectPaths []string) (*FetchResult, error) {
	result := &FetchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}

	if f.destDir != "" {
		if err := os.MkdirAll(f.destDir, 0755); err != nil {
			return nil, fmt.Errorf("objstore: failed to create fetch directory: %w", err)
		}
	}

	// Separate cache hits from downloads
	type fetchItem struct {
		path      string
		localPath string
	}
	var queue []fetchItem
	for _, p := range objectPaths {
		local := f.localPath(p)
		if _, err := os.Stat(local); err == nil {
			result.LocalPaths[p] = local
			result.CacheHits++
			continue
		}
		queue = append(queue, fetchItem{path: p, localPath: local})
	}

	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, item := range queue {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			result.Errors[item.path] = err
			mu.Unlock()
			continue
		}
		sem <- struct{}{}

		wg.Add(1)
		go func(path, local string) {
			defer func() { <-sem }()
			defer wg.Done()

			if err := f.store.Download(ctx, path, local); err != nil {
				mu.Lock()
				result.Errors[path] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.LocalPaths[path] = local
			result.Downloads++
			mu.Unlock()
		}(item.path, item.localPath)
	}

	wg.Wait()

	return result, nil
}

// localPath returns the local filesystem path for an object.
// Only the base name is used, so object paths cannot escape destDir.
func (f *BatchFetcher) localPath(objectPath string) string {
	name := filepath.Base(filepath.FromSlash(objectPath))
	if f.destDir == "" {
		return name
	}
	return filepath.Join(f.destDir, name)
}
