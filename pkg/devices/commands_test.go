package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

func TestSplitCommands(t *testing.T) {
	assert.Equal(t, []string{"show version", "show clock"}, SplitCommands("  show version\n\n show clock \n"))
	assert.Empty(t, SplitCommands(" \n\t\n"))
}

func TestGuessRunningConfigCommand(t *testing.T) {
	tests := []struct {
		platform string
		want     string
	}{
		{"huawei_vrp", "display current-configuration"},
		{"hp_comware", "display current-configuration"},
		{"h3c", "display current-configuration"},
		{"juniper_junos", "show configuration | display set"},
		{"fortinet", "show full-configuration"},
		{"cisco_ios", "show running-config"},
		{"", "show running-config"},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessRunningConfigCommand(tt.platform))
		})
	}
}

func TestRunningConfigCommandOverride(t *testing.T) {
	h := Host{Platform: "cisco_ios", Data: map[string]interface{}{"running_config_command": " show run all "}}
	assert.Equal(t, "show run all", RunningConfigCommand(h))

	h.Data["running_config_command"] = "  "
	assert.Equal(t, "show running-config", RunningConfigCommand(h))
}

func TestFactsAndInterfacesCommands(t *testing.T) {
	assert.Equal(t, "display version", FactsCommand("huawei_vrp"))
	assert.Equal(t, "show version", FactsCommand("cisco_nxos"))
	assert.Equal(t, "display interface brief", InterfacesCommand("huawei"))
	assert.Equal(t, "show interfaces terse", InterfacesCommand("juniper_junos"))
	assert.Equal(t, "show interfaces status", InterfacesCommand("cisco_ios"))
}

func TestResolveCommandTimeout(t *testing.T) {
	h := Host{
		DefaultData: map[string]interface{}{"command_timeouts": map[string]interface{}{
			"show *":              10,
			"show running-config": 60,
		}},
		GroupData: map[string]interface{}{"command_timeouts": map[string]interface{}{
			"show tech*": 600,
		}},
		Data: map[string]interface{}{"command_timeouts": map[string]interface{}{
			"show running-config": "90",
		}},
	}

	d, ok := ResolveCommandTimeout(h, "show running-config")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d, "device layer overrides defaults")

	d, ok = ResolveCommandTimeout(h, "show tech-support")
	require.True(t, ok)
	assert.Equal(t, 600*time.Second, d, "longest prefix wins")

	d, ok = ResolveCommandTimeout(h, "show clock")
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	_, ok = ResolveCommandTimeout(h, "display version")
	assert.False(t, ok)

	_, ok = ResolveCommandTimeout(Host{}, "show clock")
	assert.False(t, ok)
}

func TestResolveHostPrecedence(t *testing.T) {
	defaults := config.SSHConfig{
		DefaultUsername: "netops",
		DefaultPassword: "default-pw",
		DefaultPlatform: "cisco_ios",
		DefaultPort:     22,
		DefaultTimeout:  30,
		CommandTimeouts: map[string]int{"show *": 15},
	}
	group := &dbmeta.DeviceGroup{Name: "core", Username: "core-admin", Platform: "huawei_vrp", Timeout: 45}
	device := dbmeta.Device{Name: "sw1", Hostname: "10.0.0.1", Port: 2222, Password: "sw1-pw"}

	h := ResolveHost(device, group, defaults)
	assert.Equal(t, "sw1", h.Name)
	assert.Equal(t, "10.0.0.1", h.Hostname)
	assert.Equal(t, "huawei_vrp", h.Platform)
	assert.Equal(t, 2222, h.Port)
	assert.Equal(t, "core-admin", h.Username)
	assert.Equal(t, "sw1-pw", h.Password)
	assert.Equal(t, 45*time.Second, h.Timeout)

	d, ok := ResolveCommandTimeout(h, "show version")
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, d)

	bare := ResolveHost(dbmeta.Device{Name: "r1", Hostname: "r1.lab"}, nil, defaults)
	assert.Equal(t, "cisco_ios", bare.Platform)
	assert.Equal(t, 22, bare.Port)
	assert.Equal(t, "netops", bare.Username)
}

func TestVendorFromPlatform(t *testing.T) {
	assert.Equal(t, "Huawei", VendorFromPlatform("huawei_vrpv8"))
	assert.Equal(t, "H3C", VendorFromPlatform("hp_comware"))
	assert.Equal(t, "Cisco", VendorFromPlatform("cisco_xe"))
	assert.Equal(t, "Cisco", VendorFromPlatform("nxos"))
	assert.Equal(t, "Juniper", VendorFromPlatform("juniper_junos"))
	assert.Equal(t, "Fortinet", VendorFromPlatform("fortinet"))
	assert.Equal(t, "", VendorFromPlatform("arista_eos"))
	assert.Equal(t, "", VendorFromPlatform(""))
}

func TestEnsureHostResults(t *testing.T) {
	res := EnsureHostResults(Results{"a": success("ok")}, []string{"a", "b"})
	require.Len(t, res, 2)
	assert.False(t, res["a"].Failed)
	assert.True(t, res["b"].Failed)
	assert.Equal(t, "no result returned for host", res["b"].Exception)
	assert.True(t, res.AnyFailed())
}

func TestResultsToMap(t *testing.T) {
	m := Results{"a": success("out")}.ToMap()
	entry, ok := m["a"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, "out", entry["result"])
	assert.Equal(t, false, entry["failed"])
}
