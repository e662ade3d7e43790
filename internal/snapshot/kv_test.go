package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	_, err = kv.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set("k", []byte("v1")))
	require.NoError(t, kv.Set("k", []byte("v2")))

	got, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, kv.Delete("k"))
	require.NoError(t, kv.Delete("k"))
	_, err = kv.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileKV_SharedBetweenStores(t *testing.T) {
	dir := t.TempDir()
	writerKV, err := NewFileKV(dir)
	require.NoError(t, err)
	readerKV, err := NewFileKV(dir)
	require.NoError(t, err)

	writer := NewStore(writerKV, testLogger())
	reader := NewStore(readerKV, testLogger())

	require.NoError(t, writer.PutProfile(sampleProfile("prof_a", 0)))

	var _ Reader = reader
	p, err := reader.GetProfile("prof_a")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "prof_a", p.ID)
}

func TestMemoryKV_CopiesValues(t *testing.T) {
	kv := NewMemoryKV()
	value := []byte("abc")
	require.NoError(t, kv.Set("k", value))
	value[0] = 'z'

	got, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
