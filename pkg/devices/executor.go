package devices

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/supporttools/GoNetGuard/pkg/config"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

// Operation names used in logs and metrics
const (
	OpCommand       = "command"
	OpConfig        = "config"
	OpConnectivity  = "connectivity"
	OpRunningConfig = "running_config"
	OpFacts         = "facts"
	OpInterfaces    = "interfaces"
)

// Executor fans device operations out over a bounded number of SSH sessions
type Executor struct {
	dialer               Dialer
	runningConfigTimeout time.Duration
	maxParallel          int

	// OnConnected is called after a successful login, if set
	OnConnected func(name string)
}

// NewExecutor creates an executor using the SSH defaults from cfg
func NewExecutor(dialer Dialer, cfg config.SSHConfig) *Executor {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 10
	}
	rcTimeout := time.Duration(cfg.RunningConfigTimeout) * time.Second
	if rcTimeout <= 0 {
		rcTimeout = 180 * time.Second
	}
	return &Executor{
		dialer:               dialer,
		runningConfigTimeout: rcTimeout,
		maxParallel:          maxParallel,
	}
}

type hostFunc func(ctx context.Context, h Host, s Session) HostResult

func (e *Executor) run(ctx context.Context, operation string, hosts []Host, fn hostFunc) Results {
	results := make(Results, len(hosts))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for _, h := range hosts {
		h := h
		g.Go(func() error {
			started := time.Now()
			hr := e.runHost(ctx, h, fn)
			metrics.ObserveDeviceOperation(operation, hr.Failed, started)
			if hr.Failed {
				log.Printf("%s on %s failed: %s", operation, h.Name, hr.Exception)
			}

			mu.Lock()
			results[h.Name] = hr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return EnsureHostResults(results, names)
}

func (e *Executor) runHost(ctx context.Context, h Host, fn hostFunc) (hr HostResult) {
	defer func() {
		if r := recover(); r != nil {
			hr = failure(fmt.Errorf("panic: %v", r))
		}
	}()

	sess, err := e.dialer.Dial(ctx, h)
	if err != nil {
		return failure(err)
	}
	defer sess.Close()

	if e.OnConnected != nil {
		e.OnConnected(h.Name)
	}
	return fn(ctx, h, sess)
}

// commandTimeout picks, in order: an explicit timeout, a matching
// command_timeouts rule, then the fallback
func commandTimeout(h Host, command string, explicit int, fallback time.Duration) time.Duration {
	if explicit > 0 {
		return time.Duration(explicit) * time.Second
	}
	if t, ok := ResolveCommandTimeout(h, command); ok {
		return t
	}
	return fallback
}

// SendCommand runs one or more newline-separated commands on every host.
// A single command yields the output string as result; several yield
// {"commands": [...]} and the host fails if any command failed.
func (e *Executor) SendCommand(ctx context.Context, hosts []Host, command string, timeout int) (Results, error) {
	commands := SplitCommands(command)
	if len(commands) == 0 {
		return nil, errors.New("command cannot be empty")
	}

	return e.run(ctx, OpCommand, hosts, func(ctx context.Context, h Host, s Session) HostResult {
		if len(commands) == 1 {
			out, err := s.Send(ctx, commands[0], commandTimeout(h, commands[0], timeout, h.Timeout))
			if err != nil {
				hr := failure(err)
				hr.Result = out
				return hr
			}
			return success(out)
		}

		entries := make([]map[string]interface{}, 0, len(commands))
		failedCount := 0
		for _, c := range commands {
			out, err := s.Send(ctx, c, commandTimeout(h, c, timeout, h.Timeout))
			entry := map[string]interface{}{"command": c, "failed": err != nil}
			if err != nil {
				entry["exception"] = err.Error()
				failedCount++
			} else {
				entry["result"] = out
			}
			entries = append(entries, entry)
		}

		hr := success(map[string]interface{}{"commands": entries})
		if failedCount > 0 {
			hr.Status = "failed"
			hr.Failed = true
			hr.Exception = fmt.Sprintf("%d of %d commands failed", failedCount, len(commands))
		}
		return hr
	}), nil
}

// SendConfig applies configuration lines on every host. With dryRun the
// session is opened but nothing is sent.
func (e *Executor) SendConfig(ctx context.Context, hosts []Host, lines []string, dryRun bool, timeout int) (Results, error) {
	var cleaned []string
	for _, l := range lines {
		if l = strings.TrimRight(l, "\r "); strings.TrimSpace(l) != "" {
			cleaned = append(cleaned, l)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("config cannot be empty")
	}

	return e.run(ctx, OpConfig, hosts, func(ctx context.Context, h Host, s Session) HostResult {
		diff := strings.Join(cleaned, "\n")
		if dryRun {
			hr := success("dry run: configuration not applied")
			hr.Diff = diff
			return hr
		}

		out, err := s.SendConfig(ctx, cleaned, commandTimeout(h, cleaned[0], timeout, h.Timeout))
		if err != nil {
			hr := failure(err)
			hr.Result = out
			return hr
		}
		hr := success(out)
		hr.Diff = diff
		hr.Changed = true
		return hr
	}), nil
}

// TestConnectivity logs in to every host
func (e *Executor) TestConnectivity(ctx context.Context, hosts []Host) Results {
	return e.run(ctx, OpConnectivity, hosts, func(ctx context.Context, h Host, s Session) HostResult {
		return success(map[string]interface{}{"connected": true})
	})
}

// GetRunningConfig collects the running configuration. An empty command
// picks the per-host default.
func (e *Executor) GetRunningConfig(ctx context.Context, hosts []Host, command string, timeout int) Results {
	return e.run(ctx, OpRunningConfig, hosts, func(ctx context.Context, h Host, s Session) HostResult {
		cmd := strings.TrimSpace(command)
		if cmd == "" {
			cmd = RunningConfigCommand(h)
		}
		out, err := s.Send(ctx, cmd, commandTimeout(h, cmd, timeout, e.runningConfigTimeout))
		if err != nil {
			return failure(err)
		}
		return success(out)
	})
}

// GetFacts runs the platform version command
func (e *Executor) GetFacts(ctx context.Context, hosts []Host) Results {
	return e.run(ctx, OpFacts, hosts, func(ctx context.Context, h Host, s Session) HostResult {
		cmd := FactsCommand(h.Platform)
		out, err := s.Send(ctx, cmd, commandTimeout(h, cmd, 0, h.Timeout))
		if err != nil {
			return failure(err)
		}
		return success(out)
	})
}

// GetInterfaces runs the platform interface summary command
func (e *Executor) GetInterfaces(ctx context.Context, hosts []Host) Results {
	return e.run(ctx, OpInterfaces, hosts, func(ctx context.Context, h Host, s Session) HostResult {
		cmd := InterfacesCommand(h.Platform)
		out, err := s.Send(ctx, cmd, commandTimeout(h, cmd, 0, h.Timeout))
		if err != nil {
			return failure(err)
		}
		return success(out)
	})
}
