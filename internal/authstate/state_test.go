package authstate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type memoryBlobStore struct {
	data map[string][]byte
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{data: make(map[string][]byte)}
}

func (m *memoryBlobStore) Load(_ context.Context, provider string) ([]byte, error) {
	data, ok := m.data[provider]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return data, nil
}

func (m *memoryBlobStore) Save(_ context.Context, provider string, data []byte) error {
	m.data[provider] = data
	return nil
}

func TestWriteAndLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "molekule-credentials.json")

	if err := WriteState(path, State{Email: "a@b.c", RefreshToken: "tok"}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("state file mode = %v, want 0600", info.Mode().Perm())
	}

	state, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.Email != "a@b.c" || state.RefreshToken != "tok" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestLoadStateMissing(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("error = %v, want ErrStateNotFound", err)
	}
}

func TestLoadStateRejectsLoosePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"schema_version":1,"email":"a@b.c","refresh_token":"tok"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadState(path); err == nil {
		t.Fatal("expected permission error for 0644 state file")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	blob := newMemoryBlobStore()
	store := NewStore("molekule", "a@b.c", t.TempDir(), blob)

	if err := store.Save(context.Background(), "refresh-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	token, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "refresh-1" {
		t.Fatalf("token = %q, want refresh-1", token)
	}
}

func TestStoreFallsBackToBlob(t *testing.T) {
	blob := newMemoryBlobStore()
	seed := NewStore("molekule", "a@b.c", t.TempDir(), blob)
	if err := seed.Save(context.Background(), "refresh-2"); err != nil {
		t.Fatal(err)
	}

	// Fresh state dir: only the blob has the token.
	store := NewStore("molekule", "a@b.c", t.TempDir(), blob)
	token, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "refresh-2" {
		t.Fatalf("token = %q, want refresh-2", token)
	}
}

func TestStoreIgnoresOtherAccountState(t *testing.T) {
	dir := t.TempDir()
	first := NewStore("molekule", "old@b.c", dir, nil)
	if err := first.Save(context.Background(), "stale"); err != nil {
		t.Fatal(err)
	}

	second := NewStore("molekule", "new@b.c", dir, nil)
	token, err := second.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty for changed account", token)
	}
}
