package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/supporttools/GoNetGuard/pkg/client"
)

var (
	backupCommand string
	backupTimeout int
	snapDevice    string
	snapLimit     int
	snapOutput    string

	schedName     string
	schedDevices  []string
	schedInterval int
	schedEnabled  bool
	schedRunNow   bool
	schedCommand  string
	schedTimeout  int
	runsLimit     int
)

var backupsCmd = &cobra.Command{
	Use:     "backups",
	Aliases: []string{"backup"},
	Short:   "Collect running-configs and manage backup schedules",
}

var backupsSaveCmd = &cobra.Command{
	Use:   "save <device>...",
	Short: "Collect and store the running-config of devices now",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		fmt.Println(infoStyle.Render(fmt.Sprintf("collecting running-config from %d device(s)...", len(args))))
		results, err := newClient().SaveRunningConfigs(ctx, args, backupCommand, backupTimeout)
		if err != nil {
			fail("%v", err)
		}

		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)
		failed := 0
		for _, name := range names {
			r := results[name]
			if r.Failed {
				failed++
				fmt.Println(errorStyle.Render(fmt.Sprintf("[error] %s: %s", name, orDash(r.Exception))))
				continue
			}
			fmt.Println(successStyle.Render("[ok] " + name))
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored configuration snapshots",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		snaps, err := newClient().ListSnapshots(ctx, snapDevice, client.Page{Limit: snapLimit})
		if err != nil {
			fail("%v", err)
		}
		if len(snaps) == 0 {
			fmt.Println(dimStyle.Render("no snapshots found."))
			return
		}
		fmt.Println(titleStyle.Render(fmt.Sprintf("==> snapshots (%d)", len(snaps))))
		fmt.Println()
		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(s.ID), 10),
				s.DeviceName,
				s.ConfigType,
				humanize.Bytes(uint64(s.Bytes)),
				shortSum(s.SHA256),
				ago(&s.CollectedAt),
				orDash(s.CreatedBy),
			})
		}
		fmt.Println(renderTable([]string{"id", "device", "type", "size", "sha256", "collected", "by"}, rows))
	},
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return orDash(sum)
}

var snapshotShowCmd = &cobra.Command{
	Use:   "snapshot <id>",
	Short: "Print a snapshot, or save it with --output",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		id := parseID(args[0])
		c := newClient()
		if snapOutput == "" {
			s, err := c.GetSnapshot(ctx, id)
			if err != nil {
				fail("%v", err)
			}
			fmt.Print(s.Content)
			if !strings.HasSuffix(s.Content, "\n") {
				fmt.Println()
			}
			return
		}

		f, err := os.CreateTemp(filepath.Dir(snapOutput), ".snapshot-*")
		if err != nil {
			fail("%v", err)
		}
		name, err := c.DownloadSnapshot(ctx, id, f)
		f.Close()
		if err != nil {
			os.Remove(f.Name())
			fail("download failed: %v", err)
		}
		dest := snapOutput
		if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
			dest = filepath.Join(dest, name)
		}
		if err := os.Rename(f.Name(), dest); err != nil {
			os.Remove(f.Name())
			fail("%v", err)
		}
		fmt.Println(successStyle.Render("[ok] saved " + dest))
	},
}

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List backup schedules",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		list, err := newClient().ListSchedules(ctx, client.Page{})
		if err != nil {
			fail("%v", err)
		}
		if len(list) == 0 {
			fmt.Println(dimStyle.Render("no schedules found."))
			fmt.Printf("create one with: %s\n", dimStyle.Render("netguardctl backups schedule set --device r1 --interval 60"))
			return
		}
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			state := "active"
			if !s.Enabled {
				state = "inactive"
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(s.ID), 10),
				s.Name,
				statusStyle(state).Render(state),
				strconv.Itoa(len(s.Devices)),
				fmt.Sprintf("%dm", s.IntervalMinutes),
				ago(s.LastRunAt),
				statusStyle(s.LastStatus).Render(orDash(s.LastStatus)),
				nextRun(s),
				orDash(s.CreatedBy),
			})
		}
		fmt.Println(renderTable([]string{"id", "name", "state", "devices", "every", "last run", "last status", "next run", "owner"}, rows))
	},
}

func nextRun(s client.Schedule) string {
	if s.NextRunAt == nil {
		return "-"
	}
	return humanize.Time(*s.NextRunAt)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Change backup schedules",
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set [id]",
	Short: "Create or update your schedule, or update schedule <id>",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		changed := cmd.Flags().Changed
		in := client.ScheduleInput{}
		if changed("name") {
			in.Name = &schedName
		}
		if changed("device") {
			in.Devices = schedDevices
		}
		if changed("interval") {
			in.IntervalMinutes = &schedInterval
		}
		if changed("enabled") {
			in.Enabled = &schedEnabled
		}
		if changed("run-now") {
			in.RunImmediately = &schedRunNow
		}
		if changed("command") {
			in.Command = &schedCommand
		}
		if changed("timeout") {
			in.Timeout = &schedTimeout
		}

		c := newClient()
		var (
			s   *client.Schedule
			err error
		)
		if len(args) == 1 {
			s, err = c.UpdateSchedule(ctx, parseID(args[0]), in)
		} else {
			s, err = c.SaveSchedule(ctx, in)
		}
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] schedule %d saved: %d device(s) every %d minutes, next run %s",
			s.ID, len(s.Devices), s.IntervalMinutes, nextRun(*s))))
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a schedule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if err := newClient().DeleteSchedule(ctx, parseID(args[0])); err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render("[ok] schedule deleted"))
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run an enabled schedule on the next scheduler tick",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if err := newClient().RunScheduleNow(ctx, parseID(args[0])); err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render("[ok] triggered"))
	},
}

var scheduleRunsCmd = &cobra.Command{
	Use:   "runs <id>",
	Short: "Show recent runs of a schedule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		runs, err := newClient().ScheduleRuns(ctx, parseID(args[0]), client.Page{Limit: runsLimit})
		if err != nil {
			fail("%v", err)
		}
		if len(runs) == 0 {
			fmt.Println(dimStyle.Render("no runs yet."))
			return
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			duration := "-"
			if r.CompletedAt != nil {
				duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(r.ID), 10),
				ago(&r.StartedAt),
				duration,
				statusStyle(r.Status).Render(r.Status),
				orDash(r.ErrorMessage),
			})
		}
		fmt.Println(renderTable([]string{"run", "started", "duration", "status", "error"}, rows))
	},
}

func init() {
	backupsSaveCmd.Flags().StringVar(&backupCommand, "command", "", "override the running-config command")
	backupsSaveCmd.Flags().IntVar(&backupTimeout, "timeout", 0, "command timeout in seconds")

	snapshotsCmd.Flags().StringVar(&snapDevice, "device", "", "only snapshots of this device")
	snapshotsCmd.Flags().IntVar(&snapLimit, "limit", 50, "maximum snapshots to list")
	snapshotShowCmd.Flags().StringVarP(&snapOutput, "output", "o", "", "write the snapshot to this file or directory")

	fl := scheduleSetCmd.Flags()
	fl.StringVar(&schedName, "name", "", "schedule name")
	fl.StringSliceVarP(&schedDevices, "device", "d", nil, "device to back up (repeatable)")
	fl.IntVar(&schedInterval, "interval", 60, "interval in minutes (1-10080)")
	fl.BoolVar(&schedEnabled, "enabled", true, "enable the schedule")
	fl.BoolVar(&schedRunNow, "run-now", false, "run on the next scheduler tick")
	fl.StringVar(&schedCommand, "command", "", "override the running-config command")
	fl.IntVar(&schedTimeout, "timeout", 0, "command timeout in seconds")
	scheduleRunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")

	scheduleCmd.AddCommand(scheduleSetCmd, scheduleDeleteCmd, scheduleRunCmd, scheduleRunsCmd)
	backupsCmd.AddCommand(backupsSaveCmd, snapshotsCmd, snapshotShowCmd, schedulesCmd, scheduleCmd)
	rootCmd.AddCommand(backupsCmd)
}
