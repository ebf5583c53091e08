package engine

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UploadStorage is the storage collaborator capability. The engine only
// constructs destination paths; credentials stay with the implementation.
type UploadStorage interface {
	Upload(ctx context.Context, destinationPath string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Preview is a local revocable preview handle shown optimistically before
// the upload resolves. Release must be safe to call exactly once.
type Preview interface {
	URL() string
	Release()
}

// PreviewFactory creates a local preview for the selected file.
type PreviewFactory func(fileName string) Preview

// UploadPhase enumerates the per-field upload states.
type UploadPhase string

const (
	// UploadIdle means no upload activity for the field.
	UploadIdle UploadPhase = "idle"
	// UploadInFlight means an upload is running and a preview is displayed.
	UploadInFlight UploadPhase = "uploading"
	// UploadSucceeded means the persisted URL replaced the preview.
	UploadSucceeded UploadPhase = "succeeded"
	// UploadFailed means the displayed value reverted to empty.
	UploadFailed UploadPhase = "failed"
)

// UploadState is a snapshot of one field's upload machine.
type UploadState struct {
	Phase UploadPhase
	Value string
	Err   error
}

// UploadOrchestrator runs the per-field upload state machine for one form
// instance. At most one in-flight upload per field key is authoritative:
// starting a new upload supersedes, never queues behind, a running one, and
// a superseded call's late result is discarded. Every preview handle is
// released exactly once, on success, failure, supersession, explicit
// removal, or teardown.
type UploadOrchestrator struct {
	storage  UploadStorage
	previews PreviewFactory

	mu     sync.Mutex
	fields map[string]*fieldUpload
	wg     sync.WaitGroup
}

type fieldUpload struct {
	phase   UploadPhase
	token   uint64
	preview Preview
	value   string
	err     error
}

// NewUploadOrchestrator builds an orchestrator for one owning form instance.
func NewUploadOrchestrator(storage UploadStorage, previews PreviewFactory) *UploadOrchestrator {
	return &UploadOrchestrator{
		storage:  storage,
		previews: previews,
		fields:   make(map[string]*fieldUpload),
	}
}

// Start selects a file for the field: it synchronously installs a local
// preview as the displayed value and transitions to uploading, then resolves
// the storage call asynchronously. The destination path is unique per call
// (timestamp plus random token, scoped to the field) so concurrent uploads
// of same-named files cannot collide.
func (o *UploadOrchestrator) Start(ctx context.Context, fieldKey, fileName string, content io.Reader, contentType string) {
	o.mu.Lock()
	f := o.field(fieldKey)
	o.releasePreviewLocked(f)
	f.token++
	token := f.token
	f.phase = UploadInFlight
	f.err = nil
	if o.previews != nil {
		f.preview = o.previews(fileName)
		f.value = f.preview.URL()
	} else {
		f.value = ""
	}
	o.mu.Unlock()

	destination := destinationPath(fieldKey, fileName)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		url, err := o.storage.Upload(ctx, destination, content, contentType)
		o.mu.Lock()
		defer o.mu.Unlock()
		if f.token != token {
			// Superseded while in flight; the newer call owns the displayed
			// value and this preview was already released.
			return
		}
		o.releasePreviewLocked(f)
		if err != nil {
			f.phase = UploadFailed
			f.value = ""
			f.err = fmt.Errorf("upload %s: %w", fieldKey, err)
			return
		}
		f.phase = UploadSucceeded
		f.value = url
	}()
}

// Remove clears the field's displayed value and releases any still-held
// preview. No storage call is made; persisted objects are cleaned up by the
// caller when the record is saved. An in-flight upload is superseded.
func (o *UploadOrchestrator) Remove(fieldKey string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.field(fieldKey)
	f.token++
	o.releasePreviewLocked(f)
	f.phase = UploadIdle
	f.value = ""
	f.err = nil
}

// DeleteStored removes a persisted URL through the storage capability.
func (o *UploadOrchestrator) DeleteStored(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return o.storage.Delete(ctx, url)
}

// State returns a snapshot of the field's upload machine.
func (o *UploadOrchestrator) State(fieldKey string) UploadState {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.fields[fieldKey]
	if !ok {
		return UploadState{Phase: UploadIdle}
	}
	return UploadState{Phase: f.phase, Value: f.value, Err: f.err}
}

// Teardown supersedes all in-flight uploads and releases every still-held
// preview; it is called when the owning form instance goes away.
func (o *UploadOrchestrator) Teardown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range o.fields {
		f.token++
		o.releasePreviewLocked(f)
		f.phase = UploadIdle
		f.value = ""
		f.err = nil
	}
}

// Wait blocks until all spawned upload goroutines have resolved. Intended
// for tests and graceful shutdown.
func (o *UploadOrchestrator) Wait() {
	o.wg.Wait()
}

func (o *UploadOrchestrator) field(key string) *fieldUpload {
	f, ok := o.fields[key]
	if !ok {
		f = &fieldUpload{phase: UploadIdle}
		o.fields[key] = f
	}
	return f
}

// releasePreviewLocked releases the field's preview at most once. Caller
// holds o.mu.
func (o *UploadOrchestrator) releasePreviewLocked(f *fieldUpload) {
	if f.preview != nil {
		f.preview.Release()
		f.preview = nil
	}
}

// destinationPath builds a collision-free object path scoped to the field.
func destinationPath(fieldKey, fileName string) string {
	ext := path.Ext(fileName)
	token := uuid.NewString()[:8]
	return fmt.Sprintf("uploads/%s/%d_%s%s", fieldKey, time.Now().UnixMilli(), token, ext)
}
