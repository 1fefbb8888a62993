package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.toml")

	empty, err := loadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, Profile{}, *empty)

	in := &Profile{Server: "http://netguard:8080", User: "alice", Token: "secret", TimeoutSeconds: 30}
	saved, err := saveProfile(path, in)
	require.NoError(t, err)
	assert.Equal(t, path, saved)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	out, err := loadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, *in, *out)
}

func TestLoadProfileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("server = [unterminated"), 0600))

	_, err := loadProfile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode profile")
}

func TestFirstLineAndFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "show version", firstLine("  show version \nshow clock"))
	assert.Len(t, firstLine(strings.Repeat("x", 100)), 60)
	assert.Equal(t, "b", firstNonEmpty("", "  ", " b ", "c"))
	assert.Equal(t, "", firstNonEmpty())
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "", resultText(nil))
	assert.Equal(t, "ok", resultText("ok\n\n"))

	out := resultText(map[string]interface{}{"show clock": "12:00", "show version": "IOS 15"})
	assert.Less(t, strings.Index(out, "show clock"), strings.Index(out, "show version"))
	assert.Contains(t, out, "IOS 15")

	assert.Contains(t, resultText([]interface{}{"a", 1.0}), "\"a\"")
}
