// Package spreadsheet reads and writes the device import/export workbook.
//
// The sheet has a display-label row followed by a field-key row; data starts
// on the third row. Files with only the key row are accepted too.
package spreadsheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/supporttools/GoNetGuard/pkg/client"
)

// SheetName is the worksheet written by Export
const SheetName = "Devices"

// Column describes one field of the template
type Column struct {
	Key   string
	Label string
}

// Columns is the template layout in export order
var Columns = []Column{
	{"name", "Device Name"},
	{"hostname", "Hostname / IP"},
	{"site", "Site"},
	{"device_type", "Device Type"},
	{"platform", "Platform"},
	{"port", "SSH Port"},
	{"username", "Username"},
	{"password", "Password"},
	{"timeout", "Timeout (s)"},
	{"model", "Model"},
	{"description", "Description"},
	{"is_active", "Active"},
}

// RowError is a problem with one data row. Row is the 1-based sheet row.
type RowError struct {
	Row     int
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Result is the outcome of parsing a workbook
type Result struct {
	Devices []client.DeviceInput
	// Rows holds the sheet row of each entry in Devices
	Rows   []int
	Errors []RowError
}

// Parse reads the first worksheet of an xlsx workbook
func Parse(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	return ParseRows(rows)
}

// ParseRows parses rows as returned by excelize's GetRows
func ParseRows(rows [][]string) (*Result, error) {
	keyRow, index := findKeyRow(rows)
	if keyRow < 0 {
		return nil, errors.New("header row with field keys not found (expected a row containing name and hostname)")
	}

	res := &Result{}
	for i := keyRow + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		dev, rowErr := parseRow(row, index)
		if rowErr != "" {
			res.Errors = append(res.Errors, RowError{Row: i + 1, Message: rowErr})
			continue
		}
		res.Devices = append(res.Devices, dev)
		res.Rows = append(res.Rows, i+1)
	}
	return res, nil
}

// findKeyRow locates the field-key row among the first two rows and maps
// each known key to its column
func findKeyRow(rows [][]string) (int, map[string]int) {
	for i := 0; i < len(rows) && i < 2; i++ {
		index := map[string]int{}
		for col, cell := range rows[i] {
			key := strings.ToLower(strings.TrimSpace(cell))
			if known(key) {
				if _, dup := index[key]; !dup {
					index[key] = col
				}
			}
		}
		_, hasName := index["name"]
		_, hasHost := index["hostname"]
		if hasName && hasHost {
			return i, index
		}
	}
	return -1, nil
}

func known(key string) bool {
	for _, c := range Columns {
		if c.Key == key {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, index map[string]int) (client.DeviceInput, string) {
	cell := func(key string) string {
		col, ok := index[key]
		if !ok || col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}
	str := func(key string) *string {
		if v := cell(key); v != "" {
			return &v
		}
		return nil
	}

	dev := client.DeviceInput{Name: cell("name")}
	if dev.Name == "" {
		return dev, "name is required"
	}
	dev.Hostname = str("hostname")
	if dev.Hostname == nil {
		return dev, "hostname is required"
	}
	dev.Site = str("site")
	dev.DeviceType = str("device_type")
	dev.Platform = str("platform")
	dev.Username = str("username")
	dev.Password = str("password")
	dev.Model = str("model")
	dev.Description = str("description")

	for _, f := range []struct {
		key string
		dst **int
	}{{"port", &dev.Port}, {"timeout", &dev.Timeout}} {
		raw := cell(f.key)
		if raw == "" {
			continue
		}
		n, err := parseInt(raw)
		if err != nil {
			return dev, fmt.Sprintf("%s must be an integer, got %q", f.key, raw)
		}
		*f.dst = &n
	}

	if raw := cell("is_active"); raw != "" {
		active, ok := parseBool(raw)
		if !ok {
			return dev, fmt.Sprintf("is_active must be true/false/yes/no/1/0/是/否, got %q", raw)
		}
		dev.IsActive = &active
	}
	return dev, ""
}

// parseInt accepts "22" and the "22.0" some spreadsheet tools write for numbers
func parseInt(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int(f), nil
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1", "是":
		return true, true
	case "false", "no", "0", "否":
		return false, true
	}
	return false, false
}

// Export writes devices as an xlsx workbook using the two-row header.
// Passwords are never written.
func Export(w io.Writer, devices []client.Device) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return errors.Wrap(err, "failed to name sheet")
	}

	labels := make([]interface{}, len(Columns))
	keys := make([]interface{}, len(Columns))
	for i, c := range Columns {
		labels[i] = c.Label
		keys[i] = c.Key
	}
	if err := f.SetSheetRow(SheetName, "A1", &labels); err != nil {
		return errors.Wrap(err, "failed to write labels")
	}
	if err := f.SetSheetRow(SheetName, "A2", &keys); err != nil {
		return errors.Wrap(err, "failed to write keys")
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
		_ = f.SetCellStyle(SheetName, "A1", last, style)
	}
	if keyStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true, Color: "808080"}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(Columns), 2)
		_ = f.SetCellStyle(SheetName, "A2", last, keyStyle)
	}

	for i, d := range devices {
		row := make([]interface{}, len(Columns))
		for j, c := range Columns {
			row[j] = exportValue(d, c.Key)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write device %s", d.Name)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(Columns))
	_ = f.SetColWidth(SheetName, "A", lastCol, 16)

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

// Template writes an empty workbook with just the header rows
func Template(w io.Writer) error {
	return Export(w, nil)
}

func exportValue(d client.Device, key string) interface{} {
	switch key {
	case "name":
		return d.Name
	case "hostname":
		return d.Hostname
	case "site":
		return d.Site
	case "device_type":
		return d.DeviceType
	case "platform":
		return d.Platform
	case "port":
		return d.Port
	case "username":
		return d.Username
	case "timeout":
		return d.Timeout
	case "model":
		return d.Model
	case "description":
		return d.Description
	case "is_active":
		return strconv.FormatBool(d.IsActive)
	}
	// password
	return ""
}
