package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/supporttools/GoNetGuard/pkg/client"
	"github.com/supporttools/GoNetGuard/pkg/console"
)

var (
	taskStatus string
	taskType   string
	taskLimit  int
	logLimit   int

	execDevices []string
	execFilter  string
	execName    string
	execConfig  bool
	execDryRun  bool
	execTimeout int
	execNoWait  bool
	execPick    bool
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task"},
	Short:   "Inspect and cancel asynchronous tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		tasks, err := newClient().ListTasks(ctx, client.TaskFilter{Status: taskStatus, TaskType: taskType, Page: client.Page{Limit: taskLimit}})
		if err != nil {
			fail("failed to list tasks: %v", err)
		}
		if len(tasks) == 0 {
			fmt.Println(dimStyle.Render("no tasks found."))
			return
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("==> tasks (%d)", len(tasks))))
		fmt.Println()
		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(t.ID), 10),
				t.Name,
				t.TaskType,
				statusStyle(t.Status).Render(t.Status),
				strconv.Itoa(t.TargetsCount),
				orDash(t.CreatedBy),
				ago(&t.CreatedAt),
			})
		}
		fmt.Println(renderTable([]string{"id", "name", "type", "status", "targets", "created by", "created"}, rows))
	},
}

func parseID(arg string) uint {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		fail("invalid id %q", arg)
	}
	return uint(id)
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task with its per-device results",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		t, err := newClient().GetTask(ctx, parseID(args[0]))
		if err != nil {
			fail("%v", err)
		}
		printTask(t)
	},
}

func printTask(t *client.Task) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("==> task %d: %s", t.ID, t.Name)))
	fmt.Println()
	field("type", t.TaskType)
	field("status", statusStyle(t.Status).Render(t.Status))
	field("targets", strings.Join(t.Targets, ", "))
	if t.Command != "" {
		field("command", t.Command)
	}
	field("created by", orDash(t.CreatedBy))
	field("created", ago(&t.CreatedAt))
	if t.StartedAt != nil && t.CompletedAt != nil {
		field("duration", t.CompletedAt.Sub(*t.StartedAt).Round(time.Millisecond).String())
	}
	if t.ErrorMessage != "" {
		fmt.Println(errorStyle.Render("  error: " + t.ErrorMessage))
	}
	if len(t.Results) == 0 {
		return
	}

	fmt.Println()
	names := make([]string, 0, len(t.Results))
	for name := range t.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var hr client.HostResult
		raw, _ := json.Marshal(t.Results[name])
		_ = json.Unmarshal(raw, &hr)

		state := "success"
		if hr.Failed {
			state = client.StatusFailed
		}
		fmt.Printf("%s %s\n", valueStyle.Render(name), statusStyle(state).Render("["+state+"]"))
		if hr.Exception != "" {
			fmt.Println(errorStyle.Render("  " + hr.Exception))
		}
		if out := resultText(hr.Result); out != "" {
			fmt.Println(indent(out, "  "))
		}
		fmt.Println()
	}
}

// resultText renders command output, which is a string or a map of command to output
func resultText(v interface{}) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimRight(r, "\n")
	case map[string]interface{}:
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			b.WriteString(dimStyle.Render("# "+k) + "\n")
			b.WriteString(resultText(r[k]) + "\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}
	raw, _ := json.MarshalIndent(v, "", "  ")
	return string(raw)
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

var tasksLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show the per-device log lines of a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		logs, err := newClient().TaskLogs(ctx, parseID(args[0]), client.Page{Limit: logLimit})
		if err != nil {
			fail("%v", err)
		}
		if len(logs) == 0 {
			fmt.Println(dimStyle.Render("no log lines yet."))
			return
		}
		for _, l := range logs {
			fmt.Printf("%s %s %s\n", dimStyle.Render(l.CreatedAt.Local().Format("2006-01-02 15:04:05")),
				valueStyle.Render(l.DeviceName), statusStyle(l.Status).Render("["+l.Status+"]"))
			if l.ErrorMessage != "" {
				fmt.Println(errorStyle.Render("  " + l.ErrorMessage))
			}
			if l.RawOutput != "" {
				fmt.Println(indent(strings.TrimRight(l.RawOutput, "\n"), "  "))
			}
		}
	},
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		t, err := newClient().CancelTask(ctx, parseID(args[0]))
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] task %d %s", t.ID, t.Status)))
	},
}

var tasksWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a task until it finishes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		c := newClient()
		t := watchTask(ctx, c, parseID(args[0]))
		if t == nil {
			os.Exit(130)
		}
		printTask(t)
	},
}

// watchTask polls id until it reaches a terminal status; nil means interrupted
func watchTask(ctx context.Context, c *client.Client, id uint) *client.Task {
	done := make(chan *client.Task, 1)
	lastStatus := ""

	w := client.NewTaskWatcher(ctx, c)
	w.OnUpdate = func(t *client.Task) {
		if t.Status != lastStatus {
			lastStatus = t.Status
			fmt.Println(progressLine(t))
		}
	}
	w.OnError = func(msg string) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[warn] "+msg))
	}
	w.OnTerminal = func(t *client.Task) {
		done <- t
	}
	w.Watch(id)
	defer w.Stop()

	select {
	case t := <-done:
		return t
	case <-ctx.Done():
		fmt.Println()
		fmt.Println(labelStyle.Render(fmt.Sprintf("stopped watching; task %d keeps running on the server.", id)))
		return nil
	}
}

func progressLine(t *client.Task) string {
	return fmt.Sprintf("%s task %d %s", dimStyle.Render(time.Now().Format("15:04:05")), t.ID, statusStyle(t.Status).Render(t.Status))
}

var tasksSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show task statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		s, err := newClient().TaskSummary(ctx)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(titleStyle.Render("==> tasks"))
		fmt.Println()
		field("total", strconv.FormatInt(s.TotalTasks, 10))
		for _, status := range []string{client.StatusPending, client.StatusRunning, client.StatusCompleted, client.StatusFailed, client.StatusCanceled} {
			field(status, strconv.FormatInt(s.StatusCounts[status], 10))
		}
		if s.SuccessRate != nil {
			field("success rate", fmt.Sprintf("%.1f%%", *s.SuccessRate))
		}
		if s.AvgExecutionTimeSeconds != nil {
			field("avg duration", (time.Duration(*s.AvgExecutionTimeSeconds * float64(time.Second))).Round(time.Millisecond).String())
		}
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <command>...",
	Short: "Run CLI commands on devices and wait for the result",
	Long: "Creates a command task (or a config task with --config) for the selected devices and follows it.\n" +
		"Select devices with --device, with --filter to target every device matching a search,\n" +
		"or with --pick to narrow the inventory down interactively.",
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		c := newClient()
		targets, err := resolveTargets(ctx, c, execDevices, execFilter)
		if err != nil {
			fail("%v", err)
		}
		if execPick {
			devices, err := c.ListAllDevices(ctx, client.DeviceFilter{})
			if err != nil {
				fail("failed to list devices: %v", err)
			}
			picked, err := pickTargets(ctx, devices, os.Stdin, os.Stdout, console.DefaultDebounce)
			if err != nil {
				os.Exit(130)
			}
			targets = uniqueNames(append(targets, picked...))
		}
		if len(targets) == 0 {
			fail("no devices selected; use --device, --filter or --pick")
		}

		in := client.TaskInput{
			Name:     execName,
			TaskType: "command",
			Targets:  targets,
		}
		body := strings.Join(args, "\n")
		if execConfig {
			in.TaskType = "config"
			in.Config = body
			if execDryRun {
				in.Parameters = map[string]interface{}{"dry_run": true}
			}
		} else {
			in.Command = body
		}
		if execTimeout > 0 {
			if in.Parameters == nil {
				in.Parameters = map[string]interface{}{}
			}
			in.Parameters["timeout"] = execTimeout
		}
		if in.Name == "" {
			in.Name = firstLine(body)
		}

		t, err := c.CreateTask(ctx, in)
		if err != nil {
			fail("failed to create task: %v", err)
		}
		fmt.Println(infoStyle.Render(fmt.Sprintf("task %d created for %d device(s)", t.ID, len(targets))))
		if execNoWait {
			return
		}

		final := watchTask(ctx, c, t.ID)
		if final == nil {
			os.Exit(130)
		}
		fmt.Println()
		printTask(final)
		if final.Status != client.StatusCompleted {
			os.Exit(1)
		}
	},
}

func firstLine(s string) string {
	line := strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	if r := []rune(line); len(r) > 60 {
		line = string(r[:60])
	}
	return line
}

func init() {
	tasksListCmd.Flags().StringVar(&taskStatus, "status", "", "filter by status")
	tasksListCmd.Flags().StringVar(&taskType, "type", "", "filter by task type")
	tasksListCmd.Flags().IntVar(&taskLimit, "limit", 50, "maximum tasks to list")
	tasksLogsCmd.Flags().IntVar(&logLimit, "limit", 200, "maximum log lines")

	execCmd.Flags().StringSliceVarP(&execDevices, "device", "d", nil, "target device (repeatable)")
	execCmd.Flags().StringVar(&execFilter, "filter", "", "target every device whose name, hostname, site or platform matches")
	execCmd.Flags().BoolVar(&execPick, "pick", false, "pick target devices with an interactive search")
	execCmd.Flags().StringVar(&execName, "name", "", "task name (default: first command)")
	execCmd.Flags().BoolVar(&execConfig, "config", false, "send the arguments as configuration lines")
	execCmd.Flags().BoolVar(&execDryRun, "dry-run", false, "with --config, only show what would change")
	execCmd.Flags().IntVar(&execTimeout, "timeout", 0, "command timeout in seconds")
	execCmd.Flags().BoolVar(&execNoWait, "no-wait", false, "return once the task is created")

	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksLogsCmd, tasksCancelCmd, tasksWatchCmd, tasksSummaryCmd)
	rootCmd.AddCommand(tasksCmd, execCmd)
}
