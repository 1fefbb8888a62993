package snmp

import (
	"context"
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	raw := "1.3.6.1.4.1.25506.2.6.1.1.1.1.6.3 = INTEGER: 17"

	tests := []struct {
		name   string
		parser string
		want   string
		ok     bool
	}{
		{"regex group", `regex:INTEGER:\s*(\d+)`, "17", true},
		{"regex whole match", `regex:INTEGER`, "INTEGER", true},
		{"regex no match", `regex:STRING:\s*(\S+)`, "", false},
		{"last integer", ParserLastInteger, "17", true},
		{"last word", ParserLastWord, "17", true},
		{"no parser", "", raw, true},
		{"invalid regex", "regex:(", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseValue(raw, tt.parser)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ParseValue("", ParserLastWord)
	assert.False(t, ok)
}

func TestValidateParser(t *testing.T) {
	assert.NoError(t, ValidateParser(""))
	assert.NoError(t, ValidateParser(ParserLastInteger))
	assert.NoError(t, ValidateParser(`regex:(\d+)`))
	assert.Error(t, ValidateParser("regex:("))
	assert.Error(t, ValidateParser("first_word"))
}

func TestParseOutputToList(t *testing.T) {
	raw := "1.3.6.1.2.1.1.5.0 = STRING: \"core-sw1\"\n\ngarbage line\n1.3.6.1.2.1.1.3.0 = Timeticks: (4200)"
	got := ParseOutputToList(raw)
	require.Len(t, got, 3)

	assert.Equal(t, ParsedValue{OID: "1.3.6.1.2.1.1.5.0", Type: "STRING", Value: `"core-sw1"`, Raw: `1.3.6.1.2.1.1.5.0 = STRING: "core-sw1"`}, got[0])
	assert.Equal(t, ParsedValue{Value: "garbage line", Raw: "garbage line"}, got[1])
	assert.Equal(t, "Timeticks", got[2].Type)
	assert.Equal(t, "(4200)", got[2].Value)

	assert.Empty(t, ParseOutputToList(""))
}

func TestBuiltinMetrics(t *testing.T) {
	metrics := BuiltinMetrics()
	require.Len(t, metrics, 2)
	for _, m := range metrics {
		assert.True(t, m.IsBuiltin)
		assert.Equal(t, "gauge", m.ValueType)
		assert.Equal(t, "%", m.Unit)
		assert.NoError(t, ValidateParser(m.ValueParser))
	}
}

func TestFormatPDU(t *testing.T) {
	assert.Equal(t, "1.3.6.1.2.1.2.2.1.8.1 = INTEGER: 1",
		FormatPDU(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.8.1", Type: gosnmp.Integer, Value: 1}))
	assert.Equal(t, `1.3.6.1.2.1.1.5.0 = STRING: "sw1"`,
		FormatPDU(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("sw1")}))
	assert.Equal(t, "1.3.6.1.2.1.2.2.1.6.1 = Hex-STRING: 00 1A 2B",
		FormatPDU(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.6.1", Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0x2b}}))
	assert.Equal(t, "1.3.6.1.2.1.2.2.1.10.1 = Counter32: 42",
		FormatPDU(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(42)}))
	assert.Equal(t, "1.3.6.1.2.1.1.9.0 = No Such Object available on this agent at this OID",
		FormatPDU(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.9.0", Type: gosnmp.NoSuchObject}))
}

type fakeSession struct {
	walked    []string
	bulk      []string
	got       []string
	variables []gosnmp.SnmpPDU
	walkErr   error
}

func (f *fakeSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	f.got = append(f.got, oids...)
	return &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{{Name: "." + oids[0], Type: gosnmp.Integer, Value: 55}}}, nil
}

func (f *fakeSession) Walk(root string, fn gosnmp.WalkFunc) error {
	f.walked = append(f.walked, root)
	return f.emit(fn)
}

func (f *fakeSession) BulkWalk(root string, fn gosnmp.WalkFunc) error {
	f.bulk = append(f.bulk, root)
	return f.emit(fn)
}

func (f *fakeSession) emit(fn gosnmp.WalkFunc) error {
	if f.walkErr != nil {
		return f.walkErr
	}
	for _, v := range f.variables {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSession) Close() error { return nil }

func proberWith(s *fakeSession) *Prober {
	return &Prober{connect: func(Request) (session, error) { return s, nil }}
}

func TestProbeBulkWalkWithParser(t *testing.T) {
	s := &fakeSession{variables: []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.4.1.25506.2.6.1.1.1.1.6.3", Type: gosnmp.Integer, Value: 23},
	}}
	res := proberWith(s).Probe(context.Background(), Request{Target: "10.0.0.1", OID: "1.3.6.1.4.1.25506.2.6.1.1.1.1.6"}, `regex:INTEGER:\s*(\d+)`)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"1.3.6.1.4.1.25506.2.6.1.1.1.1.6"}, s.bulk)
	assert.Equal(t, "1.3.6.1.4.1.25506.2.6.1.1.1.1.6.3 = INTEGER: 23", res.RawOutput)
	require.Len(t, res.ParsedValues, 1)
	require.NotNil(t, res.ParsedValue)
	assert.Equal(t, "23", *res.ParsedValue)
}

func TestProbeV1UsesWalk(t *testing.T) {
	s := &fakeSession{variables: []gosnmp.SnmpPDU{{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("router")}}}
	res := proberWith(s).Probe(context.Background(), Request{Target: "r1", Version: "1", OID: "1.3.6.1.2.1.1"}, "")
	require.True(t, res.Success)
	assert.Equal(t, []string{"1.3.6.1.2.1.1"}, s.walked)
	assert.Nil(t, res.ParsedValue)
}

func TestProbeScalarUsesGet(t *testing.T) {
	s := &fakeSession{}
	res := proberWith(s).Probe(context.Background(), Request{Target: "r1", OID: "1.3.6.1.2.1.1.7.0"}, ParserLastInteger)
	require.True(t, res.Success)
	assert.Equal(t, []string{"1.3.6.1.2.1.1.7.0"}, s.got)
	assert.Empty(t, s.bulk)
	assert.Equal(t, "55", *res.ParsedValue)
}

func TestProbeEmptyWalkFallsBackToGet(t *testing.T) {
	s := &fakeSession{}
	res := proberWith(s).Probe(context.Background(), Request{Target: "r1", OID: "1.3.6.1.2.1.1.7"}, "")
	require.True(t, res.Success)
	assert.Equal(t, []string{"1.3.6.1.2.1.1.7"}, s.got)
}

func TestProbeErrors(t *testing.T) {
	res := proberWith(&fakeSession{walkErr: errors.New("request timeout")}).
		Probe(context.Background(), Request{Target: "r1", OID: "1.3.6.1.2.1.2"}, "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "request timeout")

	res = (&Prober{connect: func(Request) (session, error) { return nil, errors.New("no route") }}).
		Probe(context.Background(), Request{Target: "r1", OID: "1.3"}, "")
	assert.Equal(t, "no route", res.Error)

	res = proberWith(&fakeSession{}).Probe(context.Background(), Request{Target: "r1"}, "")
	assert.Equal(t, "oid is required", res.Error)
}
