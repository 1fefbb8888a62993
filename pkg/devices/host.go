// Package devices runs CLI operations against network devices over SSH.
package devices

import (
	"strings"
	"time"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// Host is a device with group and global defaults already applied
type Host struct {
	DeviceID uint
	Name     string
	Hostname string
	Platform string
	Port     int
	Username string
	Password string
	Timeout  time.Duration

	// Data layers, lowest precedence first: global defaults, group, device
	DefaultData map[string]interface{}
	GroupData   map[string]interface{}
	Data        map[string]interface{}
}

// ResolveHost merges a device with its group and the global SSH defaults.
// Device values win over group values, which win over defaults.
func ResolveHost(device dbmeta.Device, group *dbmeta.DeviceGroup, defaults config.SSHConfig) Host {
	h := Host{
		DeviceID: device.ID,
		Name:     device.Name,
		Hostname: device.Hostname,
		Platform: defaults.DefaultPlatform,
		Port:     defaults.DefaultPort,
		Username: defaults.DefaultUsername,
		Password: defaults.DefaultPassword,
		Timeout:  time.Duration(defaults.DefaultTimeout) * time.Second,
		Data:     device.Data,
	}

	if len(defaults.CommandTimeouts) > 0 {
		timeouts := make(map[string]interface{}, len(defaults.CommandTimeouts))
		for k, v := range defaults.CommandTimeouts {
			timeouts[k] = v
		}
		h.DefaultData = map[string]interface{}{"command_timeouts": timeouts}
	}

	if group != nil {
		h.GroupData = group.Data
		if group.Platform != "" {
			h.Platform = group.Platform
		}
		if group.Port > 0 {
			h.Port = group.Port
		}
		if group.Username != "" {
			h.Username = group.Username
		}
		if group.Password != "" {
			h.Password = group.Password
		}
		if group.Timeout > 0 {
			h.Timeout = time.Duration(group.Timeout) * time.Second
		}
	}

	if device.Platform != "" {
		h.Platform = device.Platform
	}
	if device.Port > 0 {
		h.Port = device.Port
	}
	if device.Username != "" {
		h.Username = device.Username
	}
	if device.Password != "" {
		h.Password = device.Password
	}
	if device.Timeout > 0 {
		h.Timeout = time.Duration(device.Timeout) * time.Second
	}

	return h
}

// VendorFromPlatform derives a vendor label from a platform identifier.
// Unknown platforms yield an empty string.
func VendorFromPlatform(platform string) string {
	p := strings.ToLower(platform)
	switch {
	case p == "":
		return ""
	case strings.Contains(p, "huawei"):
		return "Huawei"
	case strings.Contains(p, "h3c"), strings.Contains(p, "comware"):
		return "H3C"
	case strings.Contains(p, "cisco"), p == "nxos", p == "nexus":
		return "Cisco"
	case strings.Contains(p, "juniper"), strings.Contains(p, "junos"):
		return "Juniper"
	case strings.Contains(p, "fortinet"):
		return "Fortinet"
	}
	return ""
}
