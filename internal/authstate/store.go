package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
)

// Store persists refresh tokens for a provider account, to a local
// state file and optionally mirrored to object storage. The local
// copy wins when both exist.
type Store struct {
	provider  string
	email     string
	statePath string
	blob      BlobStore
}

func NewStore(provider, email, stateDir string, blob BlobStore) *Store {
	return &Store{
		provider:  provider,
		email:     email,
		statePath: filepath.Join(stateDir, provider+"-credentials.json"),
		blob:      blob,
	}
}

// Load returns the persisted refresh token for this account.
// State written for a different email is ignored so a reconfigured
// account never reuses another account's token.
func (s *Store) Load(ctx context.Context) (string, error) {
	state, err := LoadState(s.statePath)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return "", err
	}
	if err == nil {
		if state.Email != s.email {
			accountMismatch.WithLabelValues(s.provider).Inc()
			return "", nil
		}
		return state.RefreshToken, nil
	}

	if s.blob == nil {
		return "", nil
	}
	data, err := s.blob.Load(ctx, s.provider)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return "", nil
		}
		return "", err
	}
	state, err = DecodeState(data)
	if err != nil {
		return "", err
	}
	if state.Email != s.email {
		accountMismatch.WithLabelValues(s.provider).Inc()
		return "", nil
	}
	if err := WriteState(s.statePath, state); err != nil {
		return "", err
	}
	return state.RefreshToken, nil
}

// Save persists a fresh refresh token locally and to the blob store.
// Blob failures are non-fatal and surface on the persist gauge.
func (s *Store) Save(ctx context.Context, refreshToken string) error {
	state := State{
		SchemaVersion: SchemaVersion,
		Email:         s.email,
		RefreshToken:  refreshToken,
	}
	if err := WriteState(s.statePath, state); err != nil {
		return err
	}

	if s.blob == nil {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := s.blob.Save(ctx, s.provider, data); err != nil {
		remotePersistOK.WithLabelValues(s.provider).Set(0)
		return nil
	}
	remotePersistOK.WithLabelValues(s.provider).Set(1)
	return nil
}
