// Package snmp runs ad-hoc SNMP probes and parses their output.
package snmp

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
	"github.com/pkg/errors"

	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

// Request describes one probe
type Request struct {
	Target    string
	Port      int
	Version   string // v1, v2c or v3 (1, 2c and 3 are accepted too)
	Community string
	OID       string
	Timeout   time.Duration
	Retries   int

	// SNMPv3
	Username       string
	AuthProtocol   string
	AuthPassphrase string
	PrivProtocol   string
	PrivPassphrase string
}

// Result is the outcome of a probe
type Result struct {
	Success      bool          `json:"success"`
	RawOutput    string        `json:"raw_output,omitempty"`
	ParsedValues []ParsedValue `json:"parsed_values,omitempty"`
	ParsedValue  *string       `json:"parsed_value,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(rootOid string, walkFn gosnmp.WalkFunc) error
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
	Close() error
}

type gosnmpSession struct {
	*gosnmp.GoSNMP
}

func (s gosnmpSession) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}

// Prober executes SNMP probes
type Prober struct {
	connect func(req Request) (session, error)
}

// NewProber creates a prober backed by gosnmp
func NewProber() *Prober {
	return &Prober{connect: newSession}
}

func normalizeVersion(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "v1":
		return "v1"
	case "3", "v3":
		return "v3"
	}
	return "v2c"
}

func newSession(req Request) (session, error) {
	g := &gosnmp.GoSNMP{
		Target:  req.Target,
		Port:    uint16(req.Port),
		Timeout: req.Timeout,
		Retries: req.Retries,
		MaxOids: 60,
	}
	if g.Port == 0 {
		g.Port = 161
	}
	if g.Timeout <= 0 {
		g.Timeout = 5 * time.Second
	}

	switch normalizeVersion(req.Version) {
	case "v1":
		g.Version = gosnmp.Version1
		g.Community = req.Community
	case "v2c":
		g.Version = gosnmp.Version2c
		g.Community = req.Community
	case "v3":
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = v3MsgFlags(req)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 req.Username,
			AuthenticationProtocol:   authProtocol(req.AuthProtocol),
			AuthenticationPassphrase: req.AuthPassphrase,
			PrivacyProtocol:          privProtocol(req.PrivProtocol),
			PrivacyPassphrase:        req.PrivPassphrase,
		}
	}

	if err := g.Connect(); err != nil {
		return nil, errors.Wrapf(err, "snmp connect %s:%d", g.Target, g.Port)
	}
	return gosnmpSession{g}, nil
}

func v3MsgFlags(req Request) gosnmp.SnmpV3MsgFlags {
	hasAuth := req.AuthProtocol != "" && !strings.EqualFold(req.AuthProtocol, "noauth")
	hasPriv := req.PrivProtocol != "" && !strings.EqualFold(req.PrivProtocol, "nopriv")
	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	}
	return gosnmp.NoAuthNoPriv
}

func authProtocol(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(s) {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha256":
		return gosnmp.SHA256
	case "sha512":
		return gosnmp.SHA512
	}
	return gosnmp.NoAuth
}

func privProtocol(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(s) {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes256":
		return gosnmp.AES256
	}
	return gosnmp.NoPriv
}

// Probe walks req.OID (or gets it, for a scalar .0 instance) and renders the
// varbinds as "OID = TYPE: VALUE" lines. valueParser, if set, reduces the
// output to ParsedValue. Failures are reported in the result, not as an error.
func (p *Prober) Probe(ctx context.Context, req Request, valueParser string) Result {
	res := p.probe(ctx, req, valueParser)
	status := "success"
	if !res.Success {
		status = "failed"
	}
	metrics.SNMPProbes.WithLabelValues(status).Inc()
	return res
}

func (p *Prober) probe(ctx context.Context, req Request, valueParser string) Result {
	oid := strings.TrimSpace(req.OID)
	if oid == "" {
		return Result{Error: "oid is required"}
	}
	if req.Target == "" {
		return Result{Error: "target is required"}
	}

	type outcome struct {
		lines []string
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		sess, err := p.connect(req)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer sess.Close()
		lines, err := collect(sess, normalizeVersion(req.Version), oid)
		done <- outcome{lines: lines, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return Result{Error: fmt.Sprintf("snmp query canceled: %v", ctx.Err())}
	}
	if out.err != nil {
		return Result{Error: out.err.Error()}
	}

	raw := strings.Join(out.lines, "\n")
	res := Result{
		Success:      true,
		RawOutput:    raw,
		ParsedValues: ParseOutputToList(raw),
	}
	if valueParser != "" {
		if v, ok := ParseValue(raw, valueParser); ok {
			res.ParsedValue = &v
		}
	}
	return res
}

func collect(sess session, version, oid string) ([]string, error) {
	var lines []string
	if strings.HasSuffix(oid, ".0") {
		return getLines(sess, oid)
	}

	walkFn := func(pdu gosnmp.SnmpPDU) error {
		lines = append(lines, FormatPDU(pdu))
		return nil
	}
	var err error
	if version == "v1" {
		err = sess.Walk(oid, walkFn)
	} else {
		err = sess.BulkWalk(oid, walkFn)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "snmp walk %s", oid)
	}
	if len(lines) == 0 {
		// nothing below the root; the root itself may be a scalar
		return getLines(sess, oid)
	}
	return lines, nil
}

func getLines(sess session, oid string) ([]string, error) {
	pkt, err := sess.Get([]string{oid})
	if err != nil {
		return nil, errors.Wrapf(err, "snmp get %s", oid)
	}
	lines := make([]string, 0, len(pkt.Variables))
	for _, pdu := range pkt.Variables {
		lines = append(lines, FormatPDU(pdu))
	}
	return lines, nil
}

// FormatPDU renders a varbind the way snmpwalk prints it with numeric OIDs
func FormatPDU(pdu gosnmp.SnmpPDU) string {
	name := strings.TrimPrefix(pdu.Name, ".")
	switch pdu.Type {
	case gosnmp.Integer:
		return fmt.Sprintf("%s = INTEGER: %s", name, gosnmp.ToBigInt(pdu.Value).String())
	case gosnmp.OctetString:
		b, _ := pdu.Value.([]byte)
		if isPrintable(b) {
			return fmt.Sprintf("%s = STRING: %q", name, string(b))
		}
		return fmt.Sprintf("%s = Hex-STRING: %s", name, strings.ToUpper(spacedHex(b)))
	case gosnmp.ObjectIdentifier:
		return fmt.Sprintf("%s = OID: %v", name, pdu.Value)
	case gosnmp.IPAddress:
		return fmt.Sprintf("%s = IpAddress: %v", name, pdu.Value)
	case gosnmp.Counter32:
		return fmt.Sprintf("%s = Counter32: %s", name, bigString(pdu.Value))
	case gosnmp.Gauge32:
		return fmt.Sprintf("%s = Gauge32: %s", name, bigString(pdu.Value))
	case gosnmp.Counter64:
		return fmt.Sprintf("%s = Counter64: %s", name, bigString(pdu.Value))
	case gosnmp.TimeTicks:
		return fmt.Sprintf("%s = Timeticks: (%s)", name, bigString(pdu.Value))
	case gosnmp.Null:
		return fmt.Sprintf("%s = NULL", name)
	case gosnmp.NoSuchObject:
		return fmt.Sprintf("%s = No Such Object available on this agent at this OID", name)
	case gosnmp.NoSuchInstance:
		return fmt.Sprintf("%s = No Such Instance currently exists at this OID", name)
	case gosnmp.EndOfMibView:
		return fmt.Sprintf("%s = No more variables left in this MIB View", name)
	}
	return fmt.Sprintf("%s = %s: %v", name, pdu.Type, pdu.Value)
}

func bigString(v interface{}) string {
	return gosnmp.ToBigInt(v).String()
}

func isPrintable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func spacedHex(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = hex.EncodeToString(b[i : i+1])
	}
	return strings.Join(parts, " ")
}
