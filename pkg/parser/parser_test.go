package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseApacheCombined(t *testing.T) {
	line := `127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326`
	ev, err := Parse(FormatApacheCombined, "apache", line, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ev.Data["remote_host"])
	assert.Equal(t, 200, ev.Data["status"])
	assert.Equal(t, 2326, ev.Data["size"])
	assert.Equal(t, 2000, ev.Timestamp.Year())
}

func TestParseSyslogYearRollover(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	ev, err := Parse(FormatSyslog, "hostd", "Dec 31 23:59:59 host prog[1]: last", now)
	require.NoError(t, err)
	assert.Equal(t, 2025, ev.Timestamp.Year())
	assert.Equal(t, time.December, ev.Timestamp.Month())
	assert.Equal(t, "last", ev.Data["message"])
}

func TestParseSyslogSameYear(t *testing.T) {
	now := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)
	ev, err := Parse(FormatSyslog, "hostd", "Jan 2 03:04:05 host prog[7]: hello", now)
	require.NoError(t, err)
	assert.Equal(t, 2026, ev.Timestamp.Year())
}

func TestParseJSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ev, err := Parse(FormatJSON, "app", `{"level":"warn","msg":"disk low"}`, now)
	require.NoError(t, err)
	assert.Equal(t, "WARN", ev.Data["level"])
	assert.Equal(t, now, ev.Timestamp)
}

func TestParseJSONExplicitTimestamp(t *testing.T) {
	ev, err := Parse(FormatJSON, "app", `{"timestamp":"2020-01-02T03:04:05Z","msg":"x"}`, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2020, ev.Timestamp.Year())
	_, hasTimestamp := ev.Data["timestamp"]
	assert.False(t, hasTimestamp)
}

func TestAutoDetect(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		line string
	}{
		{"json", `{"msg":"hi"}`},
		{"apache", `127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET / HTTP/1.0" 200 100`},
		{"syslog", `Jan 2 03:04:05 host prog[7]: hello`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse(FormatAuto, "src", c.line, now)
			assert.NoError(t, err)
		})
	}
}

func TestAutoDetectNoMatch(t *testing.T) {
	_, err := Parse(FormatAuto, "src", "not a recognizable log line at all !!!", time.Now())
	assert.Error(t, err)
}
