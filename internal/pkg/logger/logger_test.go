package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	SetLevel(DEBUG)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return buf
}

func TestLog_WritesJSONEntry(t *testing.T) {
	buf := capture(t)

	Info("channel collected", "channel", "lobelia4cosmetics", "new", 12, "err", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "channel collected", entry["msg"])
	assert.Equal(t, "lobelia4cosmetics", entry["channel"])
	assert.Equal(t, float64(12), entry["new"])
	assert.Equal(t, "boom", entry["err"])
}

func TestLog_RespectsLevel(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("hidden")
	Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestLog_RedactsCredentials(t *testing.T) {
	buf := capture(t)

	Info("connecting", "database_url", "postgres://etl:hunter2@db:5432/wh", "api_token", "abcdefgh")

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "abcdefgh")
	assert.Contains(t, out, "postgres://etl:***@db:5432/wh")
}

func TestLog_RedactsKeywordDSN(t *testing.T) {
	buf := capture(t)

	Info("postgres: connected", "database_url", "host=db user=etl password=hunter2 dbname=wh")

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "host=db user=etl password=*** dbname=wh")
}

func TestRedactDSN_PasswordForms(t *testing.T) {
	tests := map[string]string{
		"host=db password='two words' dbname=wh":         "host=db password=*** dbname=wh",
		"host=db PASSWORD = s3cr3t":                       "host=db PASSWORD = ***",
		"postgres://db/wh?password=s3cr3t&sslmode=require": "postgres://db/wh?password=***&sslmode=require",
		"host=db user=etl dbname=wh":                      "host=db user=etl dbname=wh",
	}
	for in, want := range tests {
		assert.Equal(t, want, RedactDSN(in), in)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"WARNING": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestRedactDSN_NoPassword(t *testing.T) {
	assert.Equal(t, "postgres://localhost:5432/wh", RedactDSN("postgres://localhost:5432/wh"))
	assert.Equal(t, "redis://cache:6379/0", RedactDSN("redis://cache:6379/0"))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "", RedactSecret(""))
	assert.Equal(t, "***", RedactSecret("abc"))
	assert.Equal(t, "s3***", RedactSecret("s3cr3t"))
}
