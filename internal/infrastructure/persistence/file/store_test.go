package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "ranks.json"), nil)
	require.NoError(t, err)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsEmpty())
	assert.NotNil(t, state.UserRanks)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranks.json")
	store, err := NewStore(path, nil)
	require.NoError(t, err)

	in := rank.State{
		UserRanks:     map[string]int{"111": 1, "222": 2},
		RankMessageID: "333",
	}
	require.NoError(t, store.Save(context.Background(), in))

	out, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in.UserRanks, out.UserRanks)
	assert.Equal(t, in.RankMessageID, out.RankMessageID)
}

func TestLoadCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewStore(path, nil)
	require.NoError(t, err)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsEmpty())
}

func TestLoadLegacyNumericMessageID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranks.json")
	legacy := `{"user_ranks": {"111": 1}, "rank_message_id": 987654321}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	store, err := NewStore(path, nil)
	require.NoError(t, err)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"111": 1}, state.UserRanks)
	assert.Equal(t, rank.MessageRef("987654321"), state.RankMessageID)
}

func TestSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranks.json")
	store, err := NewStore(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, rank.State{UserRanks: map[string]int{"a": 1}}))
	require.NoError(t, store.Save(ctx, rank.State{UserRanks: map[string]int{"a": 1, "b": 2}}))

	// No temp leftovers after successful saves.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ranks.json", entries[0].Name())
}
