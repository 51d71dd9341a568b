package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", formatCount(0))
	assert.Equal(t, "999", formatCount(999))
	assert.Equal(t, "1,234,567", formatCount(1234567))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld and more", 10))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(nil))
	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2025-06-01T06:30:00Z", formatTime(&at))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"views": 3}))
	assert.Equal(t, "{\n  \"views\": 3\n}\n", buf.String())
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"}, {"status"}, {"sweep"}, {"rank"}, {"seed"},
		{"configs", "list"}, {"token", "issue"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, "command %v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
