package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/supporttools/GoNetGuard/pkg/client"
	"github.com/supporttools/GoNetGuard/pkg/version"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("213"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true)
)

var (
	flagServer  string
	flagUser    string
	flagToken   string
	flagProfile string
)

var rootCmd = &cobra.Command{
	Use:   "netguardctl",
	Short: "command-line console for GoNetGuard",
	Long: titleStyle.Render("netguardctl") + "\n" + subtitleStyle.Render("network device inventory, tasks, backups and SNMP metrics") + "\n\n" +
		"Talks to a GoNetGuard server. Connection settings come from flags or ~/.netguardctl.toml.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fail("%v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server URL (default from profile, then http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "user name sent in the dev user header")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "profile file (default ~/.netguardctl.toml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("netguardctl %s (built: %s, commit: %s)\n", version.Version, version.BuildTime, version.GitCommit))
}

// fail prints an error and exits
func fail(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("[error] "+fmt.Sprintf(format, args...)))
	os.Exit(1)
}

// newClient builds a client from flags over the saved profile
func newClient() *client.Client {
	profile, err := loadProfile(flagProfile)
	if err != nil {
		fail("failed to load profile: %v", err)
	}

	server := firstNonEmpty(flagServer, os.Getenv("NETGUARD_SERVER"), profile.Server, "http://localhost:8080")
	c := client.New(server)
	c.User = firstNonEmpty(flagUser, os.Getenv("NETGUARD_USER"), profile.User)
	c.Token = firstNonEmpty(flagToken, os.Getenv("NETGUARD_TOKEN"), profile.Token)
	if profile.UserHeader != "" {
		c.UserHeader = profile.UserHeader
	}
	if profile.TimeoutSeconds > 0 {
		c.HTTP.Timeout = time.Duration(profile.TimeoutSeconds) * time.Second
	}
	return c
}

// commandContext is cancelled on Ctrl-C
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().
					Foreground(lipgloss.Color("86")).
					Bold(true).
					Align(lipgloss.Center)
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func statusStyle(status string) lipgloss.Style {
	color := "252"
	switch status {
	case client.StatusCompleted, "success", "active":
		color = "42"
	case client.StatusRunning:
		color = "14"
	case client.StatusPending:
		color = "11"
	case client.StatusFailed:
		color = "9"
	case client.StatusCanceled, "inactive":
		color = "241"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func field(label, value string) {
	fmt.Printf("  %s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func ago(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// confirm asks the user to type word
func confirm(prompt, word string) bool {
	fmt.Print(labelStyle.Render(fmt.Sprintf("%s type '%s' to confirm: ", prompt, word)))
	var answer string
	_, _ = fmt.Scanln(&answer)
	return strings.TrimSpace(strings.ToLower(answer)) == word
}
