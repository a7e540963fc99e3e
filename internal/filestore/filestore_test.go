package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateBinaryWritesFileAndReturnsPath(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	path, err := store.CreateBinary(context.Background(), "firmware.bin", []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "firmware.bin"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestCreateBinaryLeavesNoPartFileBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.CreateBinary(context.Background(), "a.bin", []byte("x"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "a.bin.part"))
	require.True(t, os.IsNotExist(err))
}

func TestCreateBinaryOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.CreateBinary(context.Background(), "a.bin", []byte("first"))
	require.NoError(t, err)
	_, err = store.CreateBinary(context.Background(), "a.bin", []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestVerifyDetectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	require.Error(t, verify(path, []byte("verify me")))
	require.NoError(t, verify(path, []byte("tampered")))
}

func TestRemoveDeletesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.CreateBinary(context.Background(), "a.bin", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Remove("a.bin"))
	require.False(t, store.Exists("a.bin"))
}

func TestRemoveMissingFileIsNoOp(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Remove("nope.bin"))
}

func TestRemoveAllClearsDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.CreateBinary(context.Background(), "a.bin", []byte("x"))
	require.NoError(t, err)
	_, err = store.CreateBinary(context.Background(), "b.bin", []byte("y"))
	require.NoError(t, err)

	require.NoError(t, store.RemoveAll())
	require.False(t, store.Exists("a.bin"))
	require.False(t, store.Exists("b.bin"))
}
