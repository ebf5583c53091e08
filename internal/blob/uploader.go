package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Uploader adapts a Store to the engine's upload capability: upload by
// destination path returning a URL, delete by URL. It remembers the URL to
// key mapping for objects it stored so deletes never need to parse
// backend-specific URL shapes.
type Uploader struct {
	store Store

	mu   sync.Mutex
	keys map[string]string // url -> key
}

// NewUploader wraps a store.
func NewUploader(store Store) *Uploader {
	return &Uploader{store: store, keys: make(map[string]string)}
}

// Upload stores the content under the destination path and returns the
// persisted URL.
func (u *Uploader) Upload(ctx context.Context, destinationPath string, r io.Reader, contentType string) (string, error) {
	info, err := u.store.Put(ctx, destinationPath, r, PutOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	url := info.URL
	if url == "" {
		url, err = u.store.URLFor(ctx, destinationPath)
		if err != nil {
			return "", err
		}
	}
	u.mu.Lock()
	u.keys[url] = destinationPath
	u.mu.Unlock()
	return url, nil
}

// Delete removes a previously uploaded object by its URL.
func (u *Uploader) Delete(ctx context.Context, url string) error {
	u.mu.Lock()
	key, ok := u.keys[url]
	u.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown upload url %s", url)
	}
	if _, err := u.store.Delete(ctx, key); err != nil {
		return err
	}
	u.mu.Lock()
	delete(u.keys, url)
	u.mu.Unlock()
	return nil
}
