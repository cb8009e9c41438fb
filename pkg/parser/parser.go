// Package parser implements the stateless format detection and parsing
// rules of spec §4.3: apache_combined, syslog (BSD-style, with year
// rollover), json, and an auto-detecting dispatcher. Grounded on the
// teacher's regex-driven parser engine (services/parser/internal/engine)
// but rewritten to the spec's fixed three-format contract instead of a
// configurable pattern registry.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
)

const (
	FormatApacheCombined = "apache_combined"
	FormatSyslog         = "syslog"
	FormatJSON           = "json"
	FormatAuto           = "auto"
)

// ErrNoMatch signals that a specific-format parser's pattern did not match
// the line. Auto-detect uses this to fall through to the next candidate.
type ErrNoMatch struct{ Format string }

func (e *ErrNoMatch) Error() string { return fmt.Sprintf("parser: %s did not match", e.Format) }

// Parse dispatches on format, defaulting to auto-detect, and returns the
// canonical {source, event_type: "log", timestamp, data} event (spec §4.3).
// now is injected so callers (and tests) control "wall clock" for missing
// timestamps and syslog year rollover.
func Parse(format, source, line string, now time.Time) (*event.Event, error) {
	switch format {
	case "", FormatAuto:
		return parseAuto(source, line, now)
	case FormatApacheCombined:
		return parseApacheCombined(source, line, now)
	case FormatSyslog:
		return parseSyslog(source, line, now)
	case FormatJSON:
		return parseJSON(source, line, now)
	default:
		return nil, fmt.Errorf("parser: unknown format %q", format)
	}
}

func parseAuto(source, line string, now time.Time) (*event.Event, error) {
	for _, fn := range []func(string, string, time.Time) (*event.Event, error){
		parseJSON, parseApacheCombined, parseSyslog,
	} {
		ev, err := fn(source, line, now)
		if err == nil {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("parser: could not parse line with any known format")
}

func newEvent(source string, ts time.Time, data map[string]interface{}) *event.Event {
	return &event.Event{
		Source:    source,
		EventType: "log",
		Timestamp: ts,
		Data:      data,
	}
}

// apache_combined: the Common/Combined Log Format.
var apacheCombinedPattern = regexp.MustCompile(
	`^(?P<remote_host>\S+) (?P<ident>\S+) (?P<user>\S+) \[(?P<time>[^\]]+)\] ` +
		`"(?P<request>[^"]*)" (?P<status>\d{3}) (?P<size>\S+)` +
		`(?: "(?P<referrer>[^"]*)" "(?P<user_agent>[^"]*)")?$`,
)

func parseApacheCombined(source, line string, _ time.Time) (*event.Event, error) {
	m := apacheCombinedPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, &ErrNoMatch{Format: FormatApacheCombined}
	}
	groups := make(map[string]string)
	for i, name := range apacheCombinedPattern.SubexpNames() {
		if name != "" && i < len(m) {
			groups[name] = m[i]
		}
	}

	ts, err := time.Parse("02/Jan/2006:15:04:05 -0700", groups["time"])
	if err != nil {
		return nil, fmt.Errorf("parser: apache_combined bad time %q: %w", groups["time"], err)
	}

	data := map[string]interface{}{
		"remote_host": groups["remote_host"],
		"ident":       groups["ident"],
		"user":        groups["user"],
		"request":     groups["request"],
		"referrer":    groups["referrer"],
		"user_agent":  groups["user_agent"],
	}
	if status, err := strconv.Atoi(groups["status"]); err == nil {
		data["status"] = status
	} else {
		data["status"] = groups["status"]
	}
	if groups["size"] == "-" {
		data["size"] = 0
	} else if size, err := strconv.Atoi(groups["size"]); err == nil {
		data["size"] = size
	} else {
		data["size"] = groups["size"]
	}

	return newEvent(source, ts, data), nil
}

// syslog: BSD-style "MMM d HH:mm:ss host program[pid]: message". The year
// is never on the wire, so it's injected: current year if the parsed month
// is <= the current month, else the previous year (handles processing old
// lines spanning a Dec→Jan rollover, spec §4.3/S2).
var syslogPattern = regexp.MustCompile(
	`^(?P<month>[A-Za-z]{3})\s+(?P<day>\d{1,2}) (?P<time>\d{2}:\d{2}:\d{2}) ` +
		`(?P<host>\S+) (?P<program>[^\[:]+)(?:\[(?P<pid>\d+)\])?: (?P<message>.*)$`,
)

var monthNum = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March, "Apr": time.April,
	"May": time.May, "Jun": time.June, "Jul": time.July, "Aug": time.August,
	"Sep": time.September, "Oct": time.October, "Nov": time.November, "Dec": time.December,
}

func parseSyslog(source, line string, now time.Time) (*event.Event, error) {
	m := syslogPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, &ErrNoMatch{Format: FormatSyslog}
	}
	groups := make(map[string]string)
	for i, name := range syslogPattern.SubexpNames() {
		if name != "" && i < len(m) {
			groups[name] = m[i]
		}
	}

	month, ok := monthNum[groups["month"]]
	if !ok {
		return nil, &ErrNoMatch{Format: FormatSyslog}
	}
	day, err := strconv.Atoi(groups["day"])
	if err != nil {
		return nil, &ErrNoMatch{Format: FormatSyslog}
	}
	clock, err := time.Parse("15:04:05", groups["time"])
	if err != nil {
		return nil, &ErrNoMatch{Format: FormatSyslog}
	}

	year := now.Year()
	if int(month) > int(now.Month()) {
		year--
	}

	ts := time.Date(year, month, day, clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location())

	data := map[string]interface{}{
		"host":    groups["host"],
		"program": groups["program"],
		"pid":     groups["pid"],
		"message": groups["message"],
	}

	return newEvent(source, ts, data), nil
}

// json: decode the line as a JSON object; require a `timestamp` field or
// synthesize one from wall clock; normalize `level`/`severity` casing.
func parseJSON(source, line string, now time.Time) (*event.Event, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &data); err != nil {
		return nil, &ErrNoMatch{Format: FormatJSON}
	}

	ts := now
	if raw, ok := data["timestamp"]; ok {
		if s, ok := raw.(string); ok {
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				ts = parsed
			}
		}
	}
	delete(data, "timestamp")

	for _, key := range []string{"level", "severity"} {
		if raw, ok := data[key]; ok {
			if s, ok := raw.(string); ok {
				data[key] = strings.ToUpper(s)
			}
		}
	}

	return newEvent(source, ts, data), nil
}
