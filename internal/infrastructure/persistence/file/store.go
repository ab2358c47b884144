// Package file implements JSON file persistence for the rank state.
// The on-disk format is the canonical {"user_ranks": {...}, "rank_message_id": ...}
// document, so state files written by earlier deployments load unchanged.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

// Store is a rank.StateRepository backed by a single JSON file.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore creates a file store at the given path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("file: state path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}, nil
}

// Load reads the persisted state. A missing file is a fresh start and a
// corrupt one is degraded to empty with a warning, so the bot always comes up.
func (s *Store) Load(ctx context.Context) (rank.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("state file does not exist, starting empty", "path", s.path)
			return rank.EmptyState(), nil
		}
		return rank.State{}, fmt.Errorf("file: read state: %w", err)
	}

	var state rank.State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Error("state file is corrupt, starting empty",
			"path", s.path,
			"error", err,
		)
		return rank.EmptyState(), nil
	}

	if state.UserRanks == nil {
		state.UserRanks = make(map[string]int)
	}
	return state, nil
}

// Save writes the state atomically: a temp file in the same directory is
// fsynced and renamed over the target, so a crash never leaves a torn file.
func (s *Store) Save(ctx context.Context, state rank.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file: create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close state: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: replace state: %w", err)
	}
	return nil
}
