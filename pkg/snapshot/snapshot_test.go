package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/devices"
)

type fakeCollector struct {
	known   map[string]uint
	results devices.Results
	command string
}

func (f *fakeCollector) Resolve(names []string) ([]devices.Host, []string, error) {
	var hosts []devices.Host
	var missing []string
	for _, n := range names {
		if id, ok := f.known[n]; ok {
			hosts = append(hosts, devices.Host{DeviceID: id, Name: n})
		} else {
			missing = append(missing, n)
		}
	}
	return hosts, missing, nil
}

func (f *fakeCollector) CollectRunningConfig(ctx context.Context, hosts []devices.Host, command string, timeout int) devices.Results {
	f.command = command
	out := devices.Results{}
	for _, h := range hosts {
		if r, ok := f.results[h.Name]; ok {
			out[h.Name] = r
		}
	}
	return out
}

type fakeStore struct {
	created []*dbmeta.ConfigSnapshot
	keys    map[uint]string
	err     error
}

func (f *fakeStore) CreateSnapshots(snaps []*dbmeta.ConfigSnapshot) error {
	if f.err != nil {
		return f.err
	}
	for i, s := range snaps {
		s.ID = uint(len(f.created) + i + 1)
	}
	f.created = append(f.created, snaps...)
	return nil
}

func (f *fakeStore) SetArchiveKey(id uint, key string) error {
	if f.keys == nil {
		f.keys = map[uint]string{}
	}
	f.keys[id] = key
	return nil
}

type fakeArchive struct {
	name    string
	objects map[string][]byte
	fail    bool
	pruned  int
}

func (a *fakeArchive) Name() string { return a.name }

func (a *fakeArchive) Put(ctx context.Context, key string, content []byte) error {
	if a.fail {
		return errors.New("bucket unavailable")
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = content
	return nil
}

func (a *fakeArchive) EnforceRetention(ctx context.Context, days int) (int, error) {
	a.pruned = days
	return 0, nil
}

func TestSaveRunningConfigs(t *testing.T) {
	collector := &fakeCollector{
		known: map[string]uint{"r1": 1, "r2": 2, "r3": 3},
		results: devices.Results{
			"r1": {Status: "success", Result: "hostname r1\n"},
			"r2": {Status: "failed", Failed: true, Exception: "auth failed"},
			"r3": {Status: "success", Result: "   "},
		},
	}
	store := &fakeStore{}
	local := &fakeArchive{name: "local"}
	broken := &fakeArchive{name: "s3", fail: true}
	svc := NewService(collector, store, 30, local, broken)

	res, err := svc.SaveRunningConfigs(context.Background(), []string{"r1", "r2", "r3", "ghost"}, "show run", 0, "alice")
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, "show run", collector.command)

	ok := res["r1"].(map[string]interface{})
	assert.Equal(t, "success", ok["status"])
	assert.Equal(t, false, ok["failed"])
	assert.Equal(t, int64(12), ok["bytes"])
	assert.Equal(t, Checksum("hostname r1\n"), ok["sha256"])
	assert.Equal(t, uint(1), ok["snapshot_id"])
	assert.NotEmpty(t, ok["collected_at"])

	assert.Equal(t, "auth failed", res["r2"].(map[string]interface{})["exception"])
	assert.Equal(t, "empty running-config output", res["r3"].(map[string]interface{})["exception"])
	assert.Equal(t, "device not found", res["ghost"].(map[string]interface{})["exception"])

	require.Len(t, store.created, 1)
	snap := store.created[0]
	assert.Equal(t, uint(1), snap.DeviceID)
	assert.Equal(t, "alice", snap.CreatedBy)
	assert.Equal(t, "running", snap.ConfigType)

	key := store.keys[snap.ID]
	require.NotEmpty(t, key, "archive key is recorded when at least one archive succeeds")
	assert.Equal(t, []byte("hostname r1\n"), local.objects[key])

	device, _, short, parsed := ParseArchiveKey(key)
	require.True(t, parsed)
	assert.Equal(t, "r1", device)
	assert.Equal(t, snap.ContentSHA256[:8], short)
}

func TestSaveRunningConfigsValidation(t *testing.T) {
	svc := NewService(&fakeCollector{}, &fakeStore{}, 0)
	_, err := svc.SaveRunningConfigs(context.Background(), nil, "", 0, "")
	assert.Error(t, err)

	res, err := svc.SaveRunningConfigs(context.Background(), []string{"ghost"}, "", 0, "")
	require.NoError(t, err)
	assert.Equal(t, true, res["ghost"].(map[string]interface{})["failed"])
}

func TestSaveRunningConfigsStoreError(t *testing.T) {
	collector := &fakeCollector{
		known:   map[string]uint{"r1": 1},
		results: devices.Results{"r1": {Status: "success", Result: "hostname r1"}},
	}
	svc := NewService(collector, &fakeStore{err: errors.New("db down")}, 0)
	_, err := svc.SaveRunningConfigs(context.Background(), []string{"r1"}, "", 0, "")
	assert.EqualError(t, err, "db down")
}

func TestArchiveKeyRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	key := ArchiveKey("core/sw 1", at, "0123456789abcdef")
	assert.Equal(t, "by-device/core_sw_1/20260304T050607Z-01234567.cfg", key)

	device, parsedAt, short, ok := ParseArchiveKey("netguard/" + key)
	require.True(t, ok)
	assert.Equal(t, "core_sw_1", device)
	assert.True(t, at.Equal(parsedAt))
	assert.Equal(t, "01234567", short)

	_, _, _, ok = ParseArchiveKey("by-device/r1/notes.txt")
	assert.False(t, ok)
}

func TestEnforceRetention(t *testing.T) {
	a := &fakeArchive{name: "local"}
	NewService(&fakeCollector{}, &fakeStore{}, 14, a).EnforceRetention(context.Background())
	assert.Equal(t, 14, a.pruned)
}
