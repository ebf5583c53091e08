package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingStorage parks every upload call until the test resolves it, keyed
// by the uploaded content so resolution order is deterministic.
type blockingStorage struct {
	mu      sync.Mutex
	pending map[string]chan uploadResult
	deleted []string
}

type uploadResult struct {
	url string
	err error
}

func newBlockingStorage() *blockingStorage {
	return &blockingStorage{pending: make(map[string]chan uploadResult)}
}

func (s *blockingStorage) Upload(_ context.Context, destinationPath string, r io.Reader, _ string) (string, error) {
	data, _ := io.ReadAll(r)
	ch := make(chan uploadResult, 1)
	s.mu.Lock()
	s.pending[string(data)] = ch
	s.mu.Unlock()
	res := <-ch
	if res.err != nil {
		return "", res.err
	}
	if res.url != "" {
		return res.url, nil
	}
	return "https://cdn.example/" + destinationPath, nil
}

func (s *blockingStorage) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}

// resolve releases the upload call that read the given content, waiting for
// the call to register first.
func (s *blockingStorage) resolve(t *testing.T, content string, res uploadResult) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ch, ok := s.pending[content]
		if ok {
			delete(s.pending, content)
		}
		s.mu.Unlock()
		if ok {
			ch <- res
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("upload call for content %q never arrived", content)
}

func waitPhase(t *testing.T, o *UploadOrchestrator, fieldKey string, phase UploadPhase) UploadState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state := o.State(fieldKey); state.Phase == phase {
			return state
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("field %s never reached phase %s (now %s)", fieldKey, phase, o.State(fieldKey).Phase)
	return UploadState{}
}

type countingPreview struct {
	url      string
	released *atomic.Int32
}

func (p countingPreview) URL() string { return p.url }
func (p countingPreview) Release()    { p.released.Add(1) }

func previewFactory(counter *atomic.Int32) PreviewFactory {
	return func(fileName string) Preview {
		return countingPreview{url: "preview://" + fileName, released: counter}
	}
}

func TestUploadSuccessReplacesPreview(t *testing.T) {
	storage := newBlockingStorage()
	var released atomic.Int32
	o := NewUploadOrchestrator(storage, previewFactory(&released))

	o.Start(context.Background(), "photo", "kid.png", strings.NewReader("data"), "image/png")
	if state := o.State("photo"); state.Phase != UploadInFlight || !strings.HasPrefix(state.Value, "preview://") {
		t.Fatalf("in-flight state = %+v", state)
	}
	storage.resolve(t, "data", uploadResult{})
	o.Wait()
	state := o.State("photo")
	if state.Phase != UploadSucceeded {
		t.Fatalf("phase = %s, want succeeded", state.Phase)
	}
	if !strings.HasPrefix(state.Value, "https://cdn.example/uploads/photo/") {
		t.Fatalf("value = %q", state.Value)
	}
	if !strings.HasSuffix(state.Value, ".png") {
		t.Fatalf("destination should keep the extension: %q", state.Value)
	}
	if released.Load() != 1 {
		t.Fatalf("preview released %d times, want exactly 1", released.Load())
	}
}

func TestUploadFailureRevertsToEmpty(t *testing.T) {
	storage := newBlockingStorage()
	var released atomic.Int32
	o := NewUploadOrchestrator(storage, previewFactory(&released))

	o.Start(context.Background(), "photo", "kid.png", strings.NewReader("data"), "image/png")
	storage.resolve(t, "data", uploadResult{err: errors.New("network down")})
	o.Wait()
	state := o.State("photo")
	if state.Phase != UploadFailed || state.Value != "" {
		t.Fatalf("state = %+v", state)
	}
	if state.Err == nil || !strings.Contains(state.Err.Error(), "network down") {
		t.Fatalf("err = %v", state.Err)
	}
	if released.Load() != 1 {
		t.Fatalf("preview released %d times, want exactly 1", released.Load())
	}
}

func TestUploadSupersessionDiscardsStaleResult(t *testing.T) {
	storage := newBlockingStorage()
	var released atomic.Int32
	o := NewUploadOrchestrator(storage, previewFactory(&released))

	o.Start(context.Background(), "photo", "first.png", strings.NewReader("a"), "image/png")
	o.Start(context.Background(), "photo", "second.png", strings.NewReader("b"), "image/png")
	if released.Load() != 1 {
		t.Fatalf("starting a second upload must release the first preview exactly once, got %d", released.Load())
	}
	// The newer call resolves first and wins.
	storage.resolve(t, "b", uploadResult{url: "https://cdn.example/second"})
	waitPhase(t, o, "photo", UploadSucceeded)
	// The stale first call resolves late; its result is discarded.
	storage.resolve(t, "a", uploadResult{url: "https://cdn.example/first"})
	o.Wait()
	state := o.State("photo")
	if state.Phase != UploadSucceeded || state.Value != "https://cdn.example/second" {
		t.Fatalf("stale result displaced the winner: %+v", state)
	}
	if released.Load() != 2 {
		t.Fatalf("previews released %d times, want 2", released.Load())
	}
}

func TestRemoveClearsWithoutStorageCall(t *testing.T) {
	storage := newBlockingStorage()
	var released atomic.Int32
	o := NewUploadOrchestrator(storage, previewFactory(&released))

	o.Start(context.Background(), "doc", "terms.pdf", strings.NewReader("x"), "application/pdf")
	o.Remove("doc")
	if state := o.State("doc"); state.Phase != UploadIdle || state.Value != "" {
		t.Fatalf("state after remove = %+v", state)
	}
	if released.Load() != 1 {
		t.Fatalf("preview released %d times, want 1", released.Load())
	}
	// The in-flight call resolves late; it was superseded by Remove.
	storage.resolve(t, "x", uploadResult{url: "https://cdn.example/late"})
	o.Wait()
	if state := o.State("doc"); state.Phase != UploadIdle || state.Value != "" {
		t.Fatalf("late result resurrected the field: %+v", state)
	}
	if len(storage.deleted) != 0 {
		t.Fatalf("remove must not call storage delete: %v", storage.deleted)
	}
	if released.Load() != 1 {
		t.Fatalf("superseded call must not double-release, got %d", released.Load())
	}
}

func TestDeleteStored(t *testing.T) {
	storage := newBlockingStorage()
	o := NewUploadOrchestrator(storage, nil)
	if err := o.DeleteStored(context.Background(), "https://cdn.example/x"); err != nil {
		t.Fatalf("DeleteStored: %v", err)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != "https://cdn.example/x" {
		t.Fatalf("deleted = %v", storage.deleted)
	}
	if err := o.DeleteStored(context.Background(), ""); err != nil {
		t.Fatalf("empty url is a no-op: %v", err)
	}
	if len(storage.deleted) != 1 {
		t.Fatalf("empty url must not reach storage")
	}
}

func TestTeardownReleasesEverything(t *testing.T) {
	storage := newBlockingStorage()
	var released atomic.Int32
	o := NewUploadOrchestrator(storage, previewFactory(&released))

	o.Start(context.Background(), "a", "a.png", strings.NewReader("a"), "image/png")
	o.Start(context.Background(), "b", "b.png", strings.NewReader("b"), "image/png")
	o.Teardown()
	if released.Load() != 2 {
		t.Fatalf("teardown released %d previews, want 2", released.Load())
	}
	storage.resolve(t, "a", uploadResult{})
	storage.resolve(t, "b", uploadResult{})
	o.Wait()
	for _, key := range []string{"a", "b"} {
		if state := o.State(key); state.Phase != UploadIdle {
			t.Fatalf("field %s phase = %s after teardown", key, state.Phase)
		}
	}
	if released.Load() != 2 {
		t.Fatalf("late results double-released previews: %d", released.Load())
	}
}

func TestFieldsAreIndependent(t *testing.T) {
	storage := newBlockingStorage()
	var released atomic.Int32
	o := NewUploadOrchestrator(storage, previewFactory(&released))

	o.Start(context.Background(), "photo", "p.png", strings.NewReader("p"), "image/png")
	o.Start(context.Background(), "doc", "d.pdf", strings.NewReader("d"), "application/pdf")
	storage.resolve(t, "p", uploadResult{})
	waitPhase(t, o, "photo", UploadSucceeded)
	if state := o.State("doc"); state.Phase != UploadInFlight {
		t.Fatalf("doc phase = %s, want still in flight", state.Phase)
	}
	storage.resolve(t, "d", uploadResult{})
	o.Wait()
	if state := o.State("doc"); state.Phase != UploadSucceeded {
		t.Fatalf("doc phase = %s", state.Phase)
	}
}
