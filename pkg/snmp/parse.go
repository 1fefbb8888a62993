package snmp

import (
	"fmt"
	"regexp"
	"strings"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// Value parser forms accepted by ParseValue
const (
	ParserRegexPrefix = "regex:"
	ParserLastInteger = "last_integer"
	ParserLastWord    = "last_word"
)

var (
	outputLineRe = regexp.MustCompile(`^(.+?)\s*=\s*(.+?):\s*(.+)$`)
	integerRe    = regexp.MustCompile(`\d+`)
)

// ParsedValue is one line of walk output
type ParsedValue struct {
	OID   string `json:"oid"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Raw   string `json:"raw"`
}

// ValidateParser checks that a value parser expression is usable
func ValidateParser(parser string) error {
	switch {
	case parser == "", parser == ParserLastInteger, parser == ParserLastWord:
		return nil
	case strings.HasPrefix(parser, ParserRegexPrefix):
		if _, err := regexp.Compile(strings.TrimPrefix(parser, ParserRegexPrefix)); err != nil {
			return fmt.Errorf("invalid value parser regex: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown value parser %q", parser)
}

// ParseValue reduces raw output to a single value.
//
//	regex:<pattern>  first capture group, or the whole match
//	last_integer     last run of digits
//	last_word        last whitespace-separated word
//	""               raw output unchanged
//
// The boolean is false when the output is empty or nothing matched.
func ParseValue(raw, parser string) (string, bool) {
	if raw == "" {
		return "", false
	}

	switch {
	case parser == "":
		return raw, true
	case strings.HasPrefix(parser, ParserRegexPrefix):
		re, err := regexp.Compile(strings.TrimPrefix(parser, ParserRegexPrefix))
		if err != nil {
			return "", false
		}
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	case parser == ParserLastInteger:
		ints := integerRe.FindAllString(raw, -1)
		if len(ints) == 0 {
			return "", false
		}
		return ints[len(ints)-1], true
	case parser == ParserLastWord:
		words := strings.Fields(raw)
		if len(words) == 0 {
			return "", false
		}
		return words[len(words)-1], true
	}
	return raw, true
}

// ParseOutputToList splits "OID = TYPE: VALUE" lines. Lines that do not match
// are kept with only Value and Raw set.
func ParseOutputToList(raw string) []ParsedValue {
	results := []ParsedValue{}
	if raw == "" {
		return results
	}

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := outputLineRe.FindStringSubmatch(line); m != nil {
			results = append(results, ParsedValue{
				OID:   strings.TrimSpace(m[1]),
				Type:  strings.TrimSpace(m[2]),
				Value: strings.TrimSpace(m[3]),
				Raw:   line,
			})
			continue
		}
		results = append(results, ParsedValue{Value: strings.TrimSpace(line), Raw: line})
	}
	return results
}

// BuiltinMetrics returns the metric templates seeded at startup
func BuiltinMetrics() []dbmeta.SNMPMetric {
	return []dbmeta.SNMPMetric{
		{
			Name:        "CPU Usage",
			OID:         "1.3.6.1.4.1.25506.2.6.1.1.1.1.6.3",
			Description: "Instant CPU utilisation (H3C/HP Comware)",
			ValueType:   "gauge",
			Unit:        "%",
			ValueParser: `regex:INTEGER:\s*(\d+)`,
			IsBuiltin:   true,
		},
		{
			Name:        "Memory Usage",
			OID:         "1.3.6.1.4.1.25506.2.6.1.1.1.1.8.3",
			Description: "Instant memory utilisation (H3C/HP Comware)",
			ValueType:   "gauge",
			Unit:        "%",
			ValueParser: `regex:INTEGER:\s*(\d+)`,
			IsBuiltin:   true,
		},
	}
}
