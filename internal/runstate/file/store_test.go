package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "state")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsFileAsBaseDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := New(Config{BaseDir: path})
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "pipeline:last_run")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "pipeline:last_run", `{"status":"running"}`))
	value, found, err := store.Get(ctx, "pipeline:last_run")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"status":"running"}`, value)

	require.NoError(t, store.Remove(ctx, "pipeline:last_run"))
	_, found, err = store.Get(ctx, "pipeline:last_run")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Remove(ctx, "pipeline:last_run"))
}

func TestSlotSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "pipeline:last_run", "persisted"))

	second, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	value, found, err := second.Get(ctx, "pipeline:last_run")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "persisted", value)
}

func TestKeySeparatorsAreFlattened(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "a/b:c", "v"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a_b_c.json", entries[0].Name())
}
