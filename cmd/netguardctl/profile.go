package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// Profile holds saved connection settings
type Profile struct {
	Server         string `toml:"server"`
	User           string `toml:"user"`
	UserHeader     string `toml:"user_header,omitempty"`
	Token          string `toml:"token,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

func profilePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".netguardctl.toml"), nil
}

// loadProfile reads the profile; a missing file yields an empty profile
func loadProfile(path string) (*Profile, error) {
	p, err := profilePath(path)
	if err != nil {
		return nil, err
	}

	profile := &Profile{}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return profile, nil
	}
	if _, err := toml.DecodeFile(p, profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return profile, nil
}

func saveProfile(path string, profile *Profile) (string, error) {
	p, err := profilePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}

	// the profile may hold a token
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create profile: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(profile); err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	return p, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change saved connection settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved profile",
	Run: func(cmd *cobra.Command, args []string) {
		profile, err := loadProfile(flagProfile)
		if err != nil {
			fail("%v", err)
		}
		p, _ := profilePath(flagProfile)

		fmt.Println(titleStyle.Render("==> profile"))
		fmt.Println(dimStyle.Render("  " + p))
		fmt.Println()
		field("server", orDash(profile.Server))
		field("user", orDash(profile.User))
		field("user header", orDash(profile.UserHeader))
		token := "-"
		if profile.Token != "" {
			token = "********"
		}
		field("token", token)
		if profile.TimeoutSeconds > 0 {
			field("timeout", strconv.Itoa(profile.TimeoutSeconds)+"s")
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set server, user, user_header, token or timeout_seconds",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		profile, err := loadProfile(flagProfile)
		if err != nil {
			fail("%v", err)
		}

		key, value := args[0], args[1]
		switch key {
		case "server":
			profile.Server = value
		case "user":
			profile.User = value
		case "user_header":
			profile.UserHeader = value
		case "token":
			profile.Token = value
		case "timeout_seconds":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				fail("timeout_seconds must be a non-negative integer")
			}
			profile.TimeoutSeconds = n
		default:
			fail("unknown key %q", key)
		}

		p, err := saveProfile(flagProfile, profile)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] %s saved to %s", key, p)))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
