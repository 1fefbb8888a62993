package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/snapshot"
)

type fakeStore struct {
	known   map[string]bool
	devices map[string]dbmeta.Device
	created []*dbmeta.ConfigSnapshot
	saveErr error
}

func (f *fakeStore) ArchiveKeys() (map[string]bool, error) { return f.known, nil }

func (f *fakeStore) CreateSnapshots(rows []*dbmeta.ConfigSnapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.created = append(f.created, rows...)
	return nil
}

func (f *fakeStore) GetDevicesByNames(names []string) (map[string]dbmeta.Device, error) {
	out := map[string]dbmeta.Device{}
	for _, n := range names {
		if d, ok := f.devices[n]; ok {
			out[n] = d
		}
	}
	return out, nil
}

func writeArchive(t *testing.T, root, device, content string, at time.Time) string {
	t.Helper()
	key := snapshot.ArchiveKey(device, at, snapshot.Checksum(content))
	path := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return key
}

func TestArchiveKeyOf(t *testing.T) {
	assert.Equal(t, "by-device/sw1/a.cfg", archiveKeyOf("device-configs/by-device/sw1/a.cfg"))
	assert.Equal(t, "by-device/sw1/a.cfg", archiveKeyOf("by-device/sw1/a.cfg"))
	assert.Equal(t, "other.cfg", archiveKeyOf("other.cfg"))
}

func TestScanLocalStorage(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2025, 5, 23, 12, 0, 0, 0, time.UTC)
	key := writeArchive(t, root, "core-sw1", "hostname core-sw1\n", at)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.cfg"), []byte("x"), 0644))

	files, err := scanLocalStorage(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, key, files[0].Key)
	assert.Equal(t, "core-sw1", files[0].Device)
	assert.Equal(t, "local", files[0].Source)
	assert.True(t, at.Equal(files[0].CollectedAt))
}

func TestRecoverSnapshots(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2025, 5, 23, 12, 0, 0, 0, time.UTC)
	newKey := writeArchive(t, root, "core-sw1", "hostname core-sw1\n", at)
	oldKey := writeArchive(t, root, "core-sw1", "hostname old\n", at.Add(-time.Hour))
	writeArchive(t, root, "retired", "hostname retired\n", at)

	files, err := scanLocalStorage(root)
	require.NoError(t, err)
	// same object mirrored in S3 is ignored in favour of the local copy
	files = append([]archivedFile{{Key: newKey, Source: "s3", Path: "device-configs/" + newKey, Device: "core-sw1"}}, files...)

	store := &fakeStore{
		known:   map[string]bool{oldKey: true},
		devices: map[string]dbmeta.Device{"core-sw1": {ID: 7, Name: "core-sw1"}},
	}

	sum, err := recoverSnapshots(context.Background(), store, store, files, readLocalFile, false)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Found)
	assert.Equal(t, 1, sum.AlreadyKnown)
	assert.Equal(t, 1, sum.UnknownDevice)
	assert.Equal(t, 1, sum.Recovered)

	require.Len(t, store.created, 1)
	row := store.created[0]
	assert.Equal(t, uint(7), row.DeviceID)
	assert.Equal(t, newKey, row.ArchiveKey)
	assert.Equal(t, "hostname core-sw1\n", row.Content)
	assert.Equal(t, snapshot.Checksum(row.Content), row.ContentSHA256)
	assert.Equal(t, int64(len(row.Content)), row.Bytes)
	assert.True(t, at.Equal(row.CollectedAt))
}

func TestRecoverSnapshotsDryRun(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "core-sw1", "hostname core-sw1\n", time.Now())
	files, err := scanLocalStorage(root)
	require.NoError(t, err)

	store := &fakeStore{devices: map[string]dbmeta.Device{"core-sw1": {ID: 1, Name: "core-sw1"}}}
	sum, err := recoverSnapshots(context.Background(), store, store, files, readLocalFile, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Recovered)
	assert.Empty(t, store.created)
}

func TestRecoverSnapshotsFetchFailure(t *testing.T) {
	files := []archivedFile{{Key: "by-device/sw1/x.cfg", Source: "s3", Device: "sw1"}}
	store := &fakeStore{devices: map[string]dbmeta.Device{"sw1": {ID: 1, Name: "sw1"}}}
	broken := func(ctx context.Context, f archivedFile) ([]byte, error) { return nil, errors.New("access denied") }

	sum, err := recoverSnapshots(context.Background(), store, store, files, broken, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FetchFailed)
	assert.Zero(t, sum.Recovered)
	assert.Empty(t, store.created)
}

func TestRecoverSnapshotsSaveError(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "sw1", "hostname sw1\n", time.Now())
	files, err := scanLocalStorage(root)
	require.NoError(t, err)

	store := &fakeStore{
		devices: map[string]dbmeta.Device{"sw1": {ID: 1, Name: "sw1"}},
		saveErr: errors.New("database is locked"),
	}
	_, err = recoverSnapshots(context.Background(), store, store, files, readLocalFile, false)
	assert.EqualError(t, err, "database is locked")
}
