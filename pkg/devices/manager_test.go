package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

type fakeSource struct {
	devices   map[string]dbmeta.Device
	groups    map[string]*dbmeta.DeviceGroup
	touched   []string
	groupHits int
}

func (f *fakeSource) GetDevicesByNames(names []string) (map[string]dbmeta.Device, error) {
	out := map[string]dbmeta.Device{}
	for _, n := range names {
		if d, ok := f.devices[n]; ok {
			out[n] = d
		}
	}
	return out, nil
}

func (f *fakeSource) GetGroupByName(name string) (*dbmeta.DeviceGroup, error) {
	f.groupHits++
	if g, ok := f.groups[name]; ok {
		return g, nil
	}
	return nil, dbmeta.ErrNotFound
}

func (f *fakeSource) TouchLastConnected(name string, at time.Time) error {
	f.touched = append(f.touched, name)
	return nil
}

func newTestManager(d Dialer) (*Manager, *fakeSource) {
	src := &fakeSource{
		devices: map[string]dbmeta.Device{
			"r1": {ID: 1, Name: "r1", Hostname: "10.0.0.1", GroupName: "core"},
			"r2": {ID: 2, Name: "r2", Hostname: "10.0.0.2", GroupName: "core"},
			"r3": {ID: 3, Name: "r3", Hostname: "10.0.0.3", GroupName: "gone"},
		},
		groups: map[string]*dbmeta.DeviceGroup{
			"core": {Name: "core", Platform: "huawei_vrp"},
		},
	}
	return NewManager(src, config.SSHConfig{DefaultPlatform: "cisco_ios", DefaultPort: 22, DefaultTimeout: 30}, d), src
}

func TestManagerResolve(t *testing.T) {
	m, src := newTestManager(newFakeDialer())

	hosts, missing, err := m.Resolve([]string{"r2", "ghost", "r1", "r2", "r3"})
	require.NoError(t, err)
	require.Len(t, hosts, 3)
	assert.Equal(t, "r2", hosts[0].Name)
	assert.Equal(t, uint(2), hosts[0].DeviceID)
	assert.Equal(t, "huawei_vrp", hosts[0].Platform)
	assert.Equal(t, "cisco_ios", hosts[2].Platform, "unknown group falls back to defaults")
	assert.Equal(t, []string{"ghost"}, missing)
	assert.Equal(t, 2, src.groupHits, "groups are looked up once")
}

func TestManagerSendCommandReportsMissingDevices(t *testing.T) {
	d := newFakeDialer()
	d.outputs["display version"] = "VRP"
	m, src := newTestManager(d)

	res, err := m.SendCommand(context.Background(), []string{"r1", "ghost"}, "display version", 0)
	require.NoError(t, err)
	assert.Equal(t, "VRP", res["r1"].Result)
	assert.True(t, res["ghost"].Failed)
	assert.Equal(t, "device not found", res["ghost"].Exception)
	assert.Equal(t, []string{"r1"}, src.touched)
}

func TestManagerRequiresTargets(t *testing.T) {
	m, _ := newTestManager(newFakeDialer())
	_, err := m.TestConnectivity(context.Background(), nil)
	assert.Error(t, err)
}
