package devices

import (
	"strconv"
	"strings"
	"time"
)

// SplitCommands turns a multi-line command string into trimmed, non-empty commands
func SplitCommands(command string) []string {
	var commands []string
	for _, line := range strings.Split(command, "\n") {
		if c := strings.TrimSpace(line); c != "" {
			commands = append(commands, c)
		}
	}
	return commands
}

func platformFamily(platform string) string {
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "huawei"), strings.Contains(p, "h3c"), strings.Contains(p, "comware"):
		return "vrp"
	case strings.Contains(p, "juniper"), strings.Contains(p, "junos"):
		return "junos"
	case strings.Contains(p, "fortinet"), strings.Contains(p, "fortigate"):
		return "fortios"
	}
	return "ios"
}

// GuessRunningConfigCommand picks the command that prints the running configuration
func GuessRunningConfigCommand(platform string) string {
	switch platformFamily(platform) {
	case "vrp":
		return "display current-configuration"
	case "junos":
		return "show configuration | display set"
	case "fortios":
		return "show full-configuration"
	}
	return "show running-config"
}

// RunningConfigCommand returns the host's running_config_command override or the platform default
func RunningConfigCommand(h Host) string {
	if v, ok := h.Data["running_config_command"]; ok {
		if s := strings.TrimSpace(toString(v)); s != "" {
			return s
		}
	}
	return GuessRunningConfigCommand(h.Platform)
}

// FactsCommand returns the version command for a platform
func FactsCommand(platform string) string {
	if strings.Contains(strings.ToLower(platform), "huawei") {
		return "display version"
	}
	return "show version"
}

// InterfacesCommand returns the interface summary command for a platform
func InterfacesCommand(platform string) string {
	switch platformFamily(platform) {
	case "vrp":
		return "display interface brief"
	case "junos":
		return "show interfaces terse"
	}
	return "show interfaces status"
}

// configMode returns the commands that enter and leave configuration mode
func configMode(platform string) (enter []string, exit []string) {
	switch platformFamily(platform) {
	case "vrp":
		return []string{"system-view"}, []string{"return"}
	case "junos":
		return []string{"configure"}, []string{"commit and-quit"}
	case "fortios":
		return nil, nil
	}
	return []string{"configure terminal"}, []string{"end"}
}

// ResolveCommandTimeout looks up a per-command timeout from the host's
// command_timeouts rules. Rules merge defaults, then group, then device.
// An exact match wins over a "prefix*" rule; among prefix rules the longest wins.
func ResolveCommandTimeout(h Host, command string) (time.Duration, bool) {
	merged := map[string]float64{}
	for _, layer := range []map[string]interface{}{h.DefaultData, h.GroupData, h.Data} {
		rules, ok := layer["command_timeouts"].(map[string]interface{})
		if !ok {
			continue
		}
		for pattern, v := range rules {
			if secs, ok := toSeconds(v); ok {
				merged[pattern] = secs
			}
		}
	}
	if len(merged) == 0 {
		return 0, false
	}

	if secs, ok := merged[command]; ok {
		return seconds(secs), true
	}

	best := ""
	for pattern := range merged {
		if !strings.HasSuffix(pattern, "*") {
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(command, prefix) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return 0, false
	}
	return seconds(merged[best]), true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func toSeconds(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}
