package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/supporttools/GoNetGuard/pkg/client"
	"github.com/supporttools/GoNetGuard/pkg/console"
	"github.com/supporttools/GoNetGuard/pkg/spreadsheet"
)

var (
	devSearch   string
	devGroup    string
	devSite     string
	devPlatform string
	devInactive bool
	devLimit    int

	devInput   deviceFlags
	devYes     bool
	importOnly bool
)

// deviceFlags binds the create/update flags; only flags that were set are sent
type deviceFlags struct {
	hostname, site, deviceType, platform, username, password string
	group, vendor, model, description                        string
	port, timeout                                            int
	active                                                   bool
}

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"device", "dev"},
	Short:   "Manage the device inventory",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		filter := client.DeviceFilter{
			Group:    devGroup,
			Site:     devSite,
			Platform: devPlatform,
			Search:   devSearch,
			Page:     client.Page{Limit: devLimit},
		}
		if devInactive {
			inactive := false
			filter.IsActive = &inactive
		}
		devices, err := newClient().ListDevices(ctx, filter)
		if err != nil {
			fail("failed to list devices: %v", err)
		}
		printDevices(devices)
	},
}

func printDevices(devices []client.Device) {
	if len(devices) == 0 {
		fmt.Println(dimStyle.Render("no devices found."))
		return
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("==> devices (%d)", len(devices))))
	fmt.Println()
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		state := "active"
		if !d.IsActive {
			state = "inactive"
		}
		rows = append(rows, []string{
			d.Name,
			fmt.Sprintf("%s:%d", d.Hostname, d.Port),
			orDash(d.Site),
			d.Platform,
			orDash(d.Vendor),
			orDash(d.GroupName),
			statusStyle(state).Render(state),
			ago(d.LastConnected),
		})
	}
	fmt.Println(renderTable([]string{"name", "address", "site", "platform", "vendor", "group", "state", "last connected"}, rows))
}

var devicesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		d, err := newClient().GetDevice(ctx, args[0])
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(titleStyle.Render("==> " + d.Name))
		fmt.Println()
		field("hostname", d.Hostname)
		field("port", strconv.Itoa(d.Port))
		field("platform", d.Platform)
		field("vendor", orDash(d.Vendor))
		field("model", orDash(d.Model))
		field("os version", orDash(d.OSVersion))
		field("site", orDash(d.Site))
		field("group", orDash(d.GroupName))
		field("username", orDash(d.Username))
		field("timeout", fmt.Sprintf("%ds", d.Timeout))
		field("active", strconv.FormatBool(d.IsActive))
		field("last connected", ago(d.LastConnected))
		if d.Description != "" {
			field("description", d.Description)
		}
	},
}

func (f *deviceFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.hostname, "hostname", "", "hostname or IP address")
	fl.StringVar(&f.site, "site", "", "site")
	fl.StringVar(&f.deviceType, "device-type", "", "device type")
	fl.StringVar(&f.platform, "platform", "", "platform, e.g. cisco_ios")
	fl.StringVar(&f.username, "username", "", "SSH username")
	fl.StringVar(&f.password, "password", "", "SSH password")
	fl.StringVar(&f.group, "group", "", "group name")
	fl.StringVar(&f.vendor, "vendor", "", "vendor (derived from platform when empty)")
	fl.StringVar(&f.model, "model", "", "model")
	fl.StringVar(&f.description, "description", "", "description")
	fl.IntVar(&f.port, "port", 22, "SSH port")
	fl.IntVar(&f.timeout, "timeout", 0, "command timeout in seconds")
	fl.BoolVar(&f.active, "active", true, "whether the device is active")
}

// input converts the flags the user actually set
func (f *deviceFlags) input(cmd *cobra.Command, name string) client.DeviceInput {
	in := client.DeviceInput{Name: name}
	changed := cmd.Flags().Changed
	str := func(flag, v string) *string {
		if changed(flag) {
			return &v
		}
		return nil
	}
	in.Hostname = str("hostname", f.hostname)
	in.Site = str("site", f.site)
	in.DeviceType = str("device-type", f.deviceType)
	in.Platform = str("platform", f.platform)
	in.Username = str("username", f.username)
	in.Password = str("password", f.password)
	in.GroupName = str("group", f.group)
	in.Vendor = str("vendor", f.vendor)
	in.Model = str("model", f.model)
	in.Description = str("description", f.description)
	if changed("port") {
		in.Port = &f.port
	}
	if changed("timeout") {
		in.Timeout = &f.timeout
	}
	if changed("active") {
		in.IsActive = &f.active
	}
	return in
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if !cmd.Flags().Changed("hostname") {
			fail("--hostname is required")
		}
		d, err := newClient().CreateDevice(ctx, devInput.input(cmd, args[0]))
		if err != nil {
			fail("failed to add device: %v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] device %s added (%s, %s)", d.Name, d.Platform, orDash(d.Vendor))))
	},
}

var devicesUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Change fields of a device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		in := devInput.input(cmd, "")
		d, err := newClient().UpdateDevice(ctx, args[0], in)
		if err != nil {
			fail("failed to update device: %v", err)
		}
		fmt.Println(successStyle.Render("[ok] device " + d.Name + " updated"))
	},
}

var devicesDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete devices",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		c := newClient()
		if len(args) == 1 {
			if !devYes && !confirm("delete device "+args[0]+"?", "delete") {
				fmt.Println(labelStyle.Render("deletion cancelled."))
				return
			}
			if err := c.DeleteDevice(ctx, args[0]); err != nil {
				fail("failed to delete device: %v", err)
			}
			fmt.Println(successStyle.Render("[ok] device " + args[0] + " deleted"))
			return
		}

		if !devYes && !confirm(fmt.Sprintf("delete %d devices?", len(args)), "delete") {
			fmt.Println(labelStyle.Render("deletion cancelled."))
			return
		}
		res, err := c.BulkDeleteDevices(ctx, args, true)
		if err != nil {
			fail("bulk delete failed: %v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] deleted %d device(s)", res.Deleted)))
		if len(res.NotFound) > 0 {
			fmt.Println(dimStyle.Render("  not found: " + strings.Join(res.NotFound, ", ")))
		}
		if res.Failed > 0 {
			fmt.Println(errorStyle.Render(fmt.Sprintf("[error] %d device(s) could not be deleted", res.Failed)))
		}
	},
}

var devicesTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Test SSH connectivity to a device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		fmt.Println(infoStyle.Render("connecting to " + args[0] + "..."))
		res, err := newClient().TestConnectivity(ctx, args[0])
		if err != nil {
			fail("%v", err)
		}
		if res.Failed {
			fail("connectivity test failed: %s", orDash(res.Exception))
		}
		fmt.Println(successStyle.Render("[ok] " + args[0] + " is reachable"))
	},
}

var devicesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inventory statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		s, err := newClient().InventoryStats(ctx)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(titleStyle.Render("==> inventory"))
		fmt.Println()
		field("devices", humanize.Comma(s.TotalDevices))
		field("active", humanize.Comma(s.ActiveDevices))
		field("inactive", humanize.Comma(s.InactiveDevices))
		field("groups", humanize.Comma(s.GroupsCount))
		for _, section := range []struct {
			title  string
			counts map[string]int64
		}{{"by platform", s.ByPlatform}, {"by vendor", s.ByVendor}, {"by group", s.ByGroup}} {
			if len(section.counts) == 0 {
				continue
			}
			fmt.Println()
			fmt.Println(labelStyle.Render("  " + section.title))
			keys := make([]string, 0, len(section.counts))
			for k := range section.counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("    %-24s %s\n", orDash(k), valueStyle.Render(humanize.Comma(section.counts[k])))
			}
		}
	},
}

var devicesImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import devices from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		parsed, preview, err := loadImport(args[0])
		if err != nil {
			fail("%v", err)
		}
		for _, rowErr := range parsed.Errors {
			fmt.Println(errorStyle.Render("[skip] " + rowErr.Error()))
		}

		if preview.Total() == 0 {
			fmt.Println(dimStyle.Render("no importable rows found."))
			return
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("==> import preview (%d rows)", preview.Total())))
		fmt.Println()
		rows := [][]string{}
		for i, d := range preview.Rows() {
			rows = append(rows, []string{strconv.Itoa(parsed.Rows[i]), d.Name, deref(d.Hostname), deref(d.Site), deref(d.Platform)})
		}
		fmt.Println(renderTable([]string{"row", "name", "hostname", "site", "platform"}, rows))
		if hidden := preview.Hidden(); hidden > 0 {
			fmt.Println(dimStyle.Render(fmt.Sprintf("  ... and %d more", hidden)))
		}
		fmt.Println()

		if importOnly {
			return
		}
		if !devYes && !confirm(fmt.Sprintf("import %d devices?", preview.Total()), "import") {
			fmt.Println(labelStyle.Render("import cancelled."))
			return
		}

		ctx, cancel := commandContext()
		defer cancel()
		res, err := preview.Submit(ctx, newClient())
		if err != nil {
			fail("import failed: %v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] created %d, updated %d, failed %d", res.Created, res.Updated, res.Failed)))
		for _, e := range res.Errors {
			name := ""
			if e.Name != nil {
				name = *e.Name
			}
			fmt.Println(errorStyle.Render(fmt.Sprintf("  #%d %s: %s", e.Index+1, orDash(name), e.Error)))
		}
	},
}

var devicesExportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export devices to a spreadsheet (passwords are never exported)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		n, err := exportDevices(ctx, newClient(), client.DeviceFilter{Group: devGroup, Search: devSearch}, args[0])
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] exported %d device(s) to %s", n, args[0])))
	},
}

var devicesTemplateCmd = &cobra.Command{
	Use:   "template <file.xlsx>",
	Short: "Write an empty import template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeWorkbook(args[0], func(f *os.File) error { return spreadsheet.Template(f) }); err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render("[ok] template written to " + args[0]))
	},
}

// loadImport parses a workbook into the rows an import would submit
func loadImport(path string) (*spreadsheet.Result, *console.ImportPreview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	parsed, err := spreadsheet.Parse(f)
	if err != nil {
		return nil, nil, err
	}
	return parsed, console.NewImportPreview(parsed.Devices), nil
}

// exportDevices writes every device matching filter to path
func exportDevices(ctx context.Context, c *client.Client, filter client.DeviceFilter, path string) (int, error) {
	devices, err := c.ListAllDevices(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to list devices: %w", err)
	}
	if err := writeWorkbook(path, func(f *os.File) error { return spreadsheet.Export(f, devices) }); err != nil {
		return 0, err
	}
	return len(devices), nil
}

func writeWorkbook(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	devicesListCmd.Flags().StringVar(&devSearch, "search", "", "search name, hostname or description")
	devicesListCmd.Flags().StringVar(&devGroup, "group", "", "filter by group")
	devicesListCmd.Flags().StringVar(&devSite, "site", "", "filter by site")
	devicesListCmd.Flags().StringVar(&devPlatform, "platform", "", "filter by platform")
	devicesListCmd.Flags().BoolVar(&devInactive, "inactive", false, "only inactive devices")
	devicesListCmd.Flags().IntVar(&devLimit, "limit", 100, "maximum devices to list")

	devicesExportCmd.Flags().StringVar(&devSearch, "search", "", "only devices matching search")
	devicesExportCmd.Flags().StringVar(&devGroup, "group", "", "only devices in group")

	devInput.bind(devicesAddCmd)
	devInput.bind(devicesUpdateCmd)

	devicesDeleteCmd.Flags().BoolVarP(&devYes, "yes", "y", false, "skip confirmation")
	devicesImportCmd.Flags().BoolVarP(&devYes, "yes", "y", false, "skip confirmation")
	devicesImportCmd.Flags().BoolVar(&importOnly, "preview", false, "only show the preview")

	devicesCmd.AddCommand(devicesListCmd, devicesShowCmd, devicesAddCmd, devicesUpdateCmd, devicesDeleteCmd,
		devicesTestCmd, devicesStatsCmd, devicesImportCmd, devicesExportCmd, devicesTemplateCmd)
	rootCmd.AddCommand(devicesCmd)
}
