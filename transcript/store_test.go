package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, optFns ...func(o *Options)) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir(), optFns...)
	require.NoError(t, err)
	return store
}

func TestStore_Append(t *testing.T) {
	t.Run("timestamped filename", func(t *testing.T) {
		clock := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
		store := newTestStore(t, func(o *Options) {
			o.Now = func() time.Time { return clock }
		})

		name, err := store.Append("How is my portfolio doing?", "Quite well.")
		require.NoError(t, err)
		assert.Equal(t, "20240102_150405.md", name)

		content, err := store.Read(name)
		require.NoError(t, err)
		assert.Contains(t, content, "# Q&A Record")
		assert.Contains(t, content, "How is my portfolio doing?")
		assert.Contains(t, content, "Quite well.")
	})

	t.Run("same second does not collide", func(t *testing.T) {
		clock := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
		store := newTestStore(t, func(o *Options) {
			o.Now = func() time.Time { return clock }
		})

		first, err := store.Append("q1", "a1")
		require.NoError(t, err)
		second, err := store.Append("q2", "a2")
		require.NoError(t, err)
		third, err := store.Append("q3", "a3")
		require.NoError(t, err)

		assert.Equal(t, "20240102_150405.md", first)
		assert.Equal(t, "20240102_150405_1.md", second)
		assert.Equal(t, "20240102_150405_2.md", third)
	})
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)

	files, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	older, err := store.Append("q1", "a1")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	newer, err := store.Append("q2", "a2")
	require.NoError(t, err)

	// A stray non-record file must not show up in the listing.
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "notes.txt"), []byte("x"), 0o644))

	files, err = store.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, newer, files[0])
	assert.Equal(t, older, files[1])
}

func TestStore_Read(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Read("20240101_000000.md")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("directory is not a record", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "sub.md"), 0o755))

		_, err := store.Read("sub.md")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("traversal rejected", func(t *testing.T) {
		store := newTestStore(t)

		secret := filepath.Join(filepath.Dir(store.Root()), "secret.md")
		require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))

		_, err := store.Read("../secret.md")
		assert.ErrorIs(t, err, ErrPathViolation)

		_, err = store.Read(filepath.Join("..", filepath.Base(store.Root()), "..", "secret.md"))
		assert.ErrorIs(t, err, ErrPathViolation)
	})

	t.Run("absolute path rejected", func(t *testing.T) {
		store := newTestStore(t)

		secret := filepath.Join(t.TempDir(), "secret.md")
		require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))

		_, err := store.Read(secret)
		assert.ErrorIs(t, err, ErrPathViolation)
	})

	t.Run("symlink escape rejected", func(t *testing.T) {
		store := newTestStore(t)

		secret := filepath.Join(t.TempDir(), "secret.md")
		require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))
		require.NoError(t, os.Symlink(secret, filepath.Join(store.Root(), "link.md")))

		_, err := store.Read("link.md")
		assert.ErrorIs(t, err, ErrPathViolation)
	})
}

func TestStore_Delete(t *testing.T) {
	t.Run("mixed batch is best effort", func(t *testing.T) {
		store := newTestStore(t)

		name, err := store.Append("q", "a")
		require.NoError(t, err)

		res := store.Delete([]string{name, "missing.md", "../escape.md", "report.txt"})

		assert.Equal(t, []string{name}, res.Deleted)
		require.Len(t, res.Failed, 3)
		assert.Equal(t, "file does not exist", res.Failed["missing.md"])
		assert.Equal(t, "invalid file path", res.Failed["../escape.md"])
		assert.Contains(t, res.Failed["report.txt"], "invalid record filename")

		files, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("empty batch", func(t *testing.T) {
		store := newTestStore(t)

		res := store.Delete(nil)
		assert.Empty(t, res.Deleted)
		assert.Empty(t, res.Failed)
	})
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "results")

	store, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(store.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
