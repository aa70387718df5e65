package uploads

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plume-cms/plume/internal/shared"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("cover.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "cover.png", name)

	f, err := store.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Remove(name))
	_, err = store.Open(name)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDiskStoreFlattensTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)

	name, err := store.Save("../../etc/passwd.png", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "passwd.png", name)

	_, err = os.Stat(filepath.Join(root, "passwd.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "etc", "passwd.png"))
	require.True(t, os.IsNotExist(err))
}

func TestDiskStoreRefusesOverwrite(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("dup.jpg", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.Save("dup.jpg", strings.NewReader("second"))
	require.Error(t, err)

	f, err := store.Open("dup.jpg")
	require.NoError(t, err)
	data, _ := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.Equal(t, "first", string(data))
}

func TestNewDiskStoreRequiresRoot(t *testing.T) {
	_, err := NewDiskStore("  ")
	require.Error(t, err)
}
