package devices

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// DeviceSource loads inventory records for host resolution
type DeviceSource interface {
	GetDevicesByNames(names []string) (map[string]dbmeta.Device, error)
	GetGroupByName(name string) (*dbmeta.DeviceGroup, error)
	TouchLastConnected(name string, at time.Time) error
}

// Manager runs operations against devices addressed by inventory name
type Manager struct {
	source   DeviceSource
	defaults config.SSHConfig
	exec     *Executor
}

// NewManager creates a manager that resolves names through source and
// connects with dialer
func NewManager(source DeviceSource, defaults config.SSHConfig, dialer Dialer) *Manager {
	exec := NewExecutor(dialer, defaults)
	exec.OnConnected = func(name string) {
		if err := source.TouchLastConnected(name, time.Now()); err != nil {
			log.Printf("Failed to record last connection for %s: %v", name, err)
		}
	}
	return &Manager{source: source, defaults: defaults, exec: exec}
}

// Resolve returns hosts for the names found in inventory, in request order,
// and the names that were not found
func (m *Manager) Resolve(names []string) ([]Host, []string, error) {
	found, err := m.source.GetDevicesByNames(names)
	if err != nil {
		return nil, nil, err
	}

	groups := map[string]*dbmeta.DeviceGroup{}
	var hosts []Host
	var missing []string
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		device, ok := found[name]
		if !ok {
			missing = append(missing, name)
			continue
		}

		var group *dbmeta.DeviceGroup
		if device.GroupName != "" {
			g, cached := groups[device.GroupName]
			if !cached {
				g, err = m.source.GetGroupByName(device.GroupName)
				if err != nil {
					// a missing group only loses its defaults
					g = nil
				}
				groups[device.GroupName] = g
			}
			group = g
		}
		hosts = append(hosts, ResolveHost(device, group, m.defaults))
	}
	return hosts, missing, nil
}

func (m *Manager) resolveTargets(names []string) ([]Host, Results, error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("at least one target device is required")
	}
	hosts, missing, err := m.Resolve(names)
	if err != nil {
		return nil, nil, err
	}
	notFound := Results{}
	for _, name := range missing {
		notFound[name] = HostResult{Status: "failed", Failed: true, Exception: "device not found"}
	}
	return hosts, notFound, nil
}

func merge(into, from Results) Results {
	if into == nil {
		into = Results{}
	}
	for k, v := range from {
		into[k] = v
	}
	return into
}

// SendCommand runs commands on the named devices
func (m *Manager) SendCommand(ctx context.Context, names []string, command string, timeout int) (Results, error) {
	hosts, results, err := m.resolveTargets(names)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return results, nil
	}
	res, err := m.exec.SendCommand(ctx, hosts, command, timeout)
	if err != nil {
		return nil, err
	}
	return merge(results, res), nil
}

// SendConfig applies configuration lines on the named devices
func (m *Manager) SendConfig(ctx context.Context, names []string, lines []string, dryRun bool, timeout int) (Results, error) {
	hosts, results, err := m.resolveTargets(names)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return results, nil
	}
	res, err := m.exec.SendConfig(ctx, hosts, lines, dryRun, timeout)
	if err != nil {
		return nil, err
	}
	return merge(results, res), nil
}

// TestConnectivity logs in to the named devices
func (m *Manager) TestConnectivity(ctx context.Context, names []string) (Results, error) {
	hosts, results, err := m.resolveTargets(names)
	if err != nil {
		return nil, err
	}
	return merge(results, m.exec.TestConnectivity(ctx, hosts)), nil
}

// GetFacts runs the version command on the named devices
func (m *Manager) GetFacts(ctx context.Context, names []string) (Results, error) {
	hosts, results, err := m.resolveTargets(names)
	if err != nil {
		return nil, err
	}
	return merge(results, m.exec.GetFacts(ctx, hosts)), nil
}

// GetInterfaces runs the interface summary command on the named devices
func (m *Manager) GetInterfaces(ctx context.Context, names []string) (Results, error) {
	hosts, results, err := m.resolveTargets(names)
	if err != nil {
		return nil, err
	}
	return merge(results, m.exec.GetInterfaces(ctx, hosts)), nil
}

// CollectRunningConfig fetches the running configuration from already resolved hosts
func (m *Manager) CollectRunningConfig(ctx context.Context, hosts []Host, command string, timeout int) Results {
	if len(hosts) == 0 {
		return Results{}
	}
	return m.exec.GetRunningConfig(ctx, hosts, command, timeout)
}
