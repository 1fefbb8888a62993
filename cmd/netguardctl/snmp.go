package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supporttools/GoNetGuard/pkg/client"
)

var (
	metricBuiltin bool
	metricOID     string
	metricDesc    string
	metricType    string
	metricUnit    string
	metricParser  string

	probeHost      string
	probeDevice    string
	probeVersion   string
	probeCommunity string
	probePort      int
	probeParser    string
	probeTimeout   int
)

var snmpCmd = &cobra.Command{
	Use:   "snmp",
	Short: "Manage SNMP metric definitions and probe OIDs",
}

var metricsListCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List SNMP metrics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		c := newClient()
		list, err := c.ListMetrics(ctx)
		if metricBuiltin {
			list, err = c.BuiltinMetrics(ctx)
		}
		if err != nil {
			fail("%v", err)
		}
		if len(list) == 0 {
			fmt.Println(dimStyle.Render("no metrics defined."))
			return
		}
		rows := make([][]string, 0, len(list))
		for _, m := range list {
			kind := "custom"
			if m.IsBuiltin {
				kind = "builtin"
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(m.ID), 10),
				m.Name,
				m.OID,
				m.ValueType,
				orDash(m.Unit),
				orDash(m.ValueParser),
				dimStyle.Render(kind),
			})
		}
		fmt.Println(renderTable([]string{"id", "name", "oid", "type", "unit", "parser", "kind"}, rows))
	},
}

func metricInput(cmd *cobra.Command, name string) client.MetricInput {
	changed := cmd.Flags().Changed
	in := client.MetricInput{}
	if name != "" {
		in.Name = &name
	}
	if changed("oid") {
		in.OID = &metricOID
	}
	if changed("description") {
		in.Description = &metricDesc
	}
	if changed("type") {
		in.ValueType = &metricType
	}
	if changed("unit") {
		in.Unit = &metricUnit
	}
	if changed("parser") {
		in.ValueParser = &metricParser
	}
	return in
}

var metricAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a custom metric",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if metricOID == "" {
			fail("--oid is required")
		}
		m, err := newClient().CreateMetric(ctx, metricInput(cmd, args[0]))
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("[ok] metric %s (%d) added", m.Name, m.ID)))
	},
}

var metricUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a custom metric",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		m, err := newClient().UpdateMetric(ctx, parseID(args[0]), metricInput(cmd, ""))
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render("[ok] metric " + m.Name + " updated"))
	},
}

var metricDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a custom metric",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if err := newClient().DeleteMetric(ctx, parseID(args[0])); err != nil {
			fail("%v", err)
		}
		fmt.Println(successStyle.Render("[ok] metric deleted"))
	},
}

var snmpTestCmd = &cobra.Command{
	Use:   "test <oid>",
	Short: "Probe an OID on a host or inventory device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if probeHost == "" && probeDevice == "" {
			fail("one of --host or --device is required")
		}
		res, err := newClient().TestOID(ctx, client.SNMPTestInput{
			Host:          probeHost,
			DeviceName:    probeDevice,
			OID:           args[0],
			SNMPVersion:   probeVersion,
			SNMPCommunity: probeCommunity,
			Port:          probePort,
			ValueParser:   probeParser,
			Timeout:       probeTimeout,
		})
		if err != nil {
			fail("%v", err)
		}
		if !res.Success {
			fail("probe failed: %s", orDash(res.Error))
		}

		rows := make([][]string, 0, len(res.ParsedValues))
		for _, v := range res.ParsedValues {
			rows = append(rows, []string{v.OID, v.Type, v.Value})
		}
		if len(rows) > 0 {
			fmt.Println(renderTable([]string{"oid", "type", "value"}, rows))
		} else {
			fmt.Println(res.RawOutput)
		}
		if res.ParsedValue != nil {
			fmt.Println()
			field("parsed value", *res.ParsedValue)
		}
	},
}

func init() {
	metricsListCmd.Flags().BoolVar(&metricBuiltin, "builtin", false, "list the built-in metric catalogue")

	for _, c := range []*cobra.Command{metricAddCmd, metricUpdateCmd} {
		c.Flags().StringVar(&metricOID, "oid", "", "OID")
		c.Flags().StringVar(&metricDesc, "description", "", "description")
		c.Flags().StringVar(&metricType, "type", "gauge", "value type: gauge, counter or string")
		c.Flags().StringVar(&metricUnit, "unit", "", "unit")
		c.Flags().StringVar(&metricParser, "parser", "", "value parser: regex:<pattern>, last_integer or last_word")
	}

	fl := snmpTestCmd.Flags()
	fl.StringVar(&probeHost, "host", "", "target host")
	fl.StringVar(&probeDevice, "device", "", "inventory device; its SNMP settings are used")
	fl.StringVar(&probeVersion, "version", "", "SNMP version: 1, 2c or 3")
	fl.StringVar(&probeCommunity, "community", "", "community string")
	fl.IntVar(&probePort, "port", 0, "SNMP port")
	fl.StringVar(&probeParser, "parser", "", "value parser to apply")
	fl.IntVar(&probeTimeout, "timeout", 0, "timeout in seconds")

	snmpCmd.AddCommand(metricsListCmd, metricAddCmd, metricUpdateCmd, metricDeleteCmd, snmpTestCmd)
	rootCmd.AddCommand(snmpCmd)
}
