package rule

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadFromYAMLParsesSelectionOperators(t *testing.T) {
	l := NewLoader(LoaderConfig{}, nil, testLogger())

	yaml := `
id: r1
name: suspicious download
type: simple
severity: high
description: detects a suspicious download pattern
detection:
  selection:
    "process.name|endswith": ".exe"
    "command_line|contains": "DownloadString"
`

	r, err := l.LoadFromYAML(yaml)
	require.NoError(t, err)
	require.NotNil(t, r.ParsedConditions)
	assert.Len(t, r.ParsedConditions.Conditions, 2)

	byField := map[string]*Condition{}
	for _, c := range r.ParsedConditions.Conditions {
		byField[c.Field] = c
	}

	require.Contains(t, byField, "process.name")
	assert.Equal(t, OpEndsWith, byField["process.name"].Operator)

	require.Contains(t, byField, "command_line")
	assert.Equal(t, OpContains, byField["command_line"].Operator)
}

func TestLoadFromJSONRoundTripsARule(t *testing.T) {
	l := NewLoader(LoaderConfig{}, nil, testLogger())

	r, err := l.LoadFromJSON(`{"id":"r2","name":"test","type":"simple"}`)
	require.NoError(t, err)
	assert.Equal(t, "r2", r.ID)
}

func TestLoadFromYAMLRejectsUnparsableContent(t *testing.T) {
	l := NewLoader(LoaderConfig{}, nil, testLogger())

	_, err := l.LoadFromYAML("not: valid: yaml: at: all: - [")
	assert.Error(t, err)
}

func TestLoadFromYAMLSetsOrLogicWhenConditionSaysOr(t *testing.T) {
	l := NewLoader(LoaderConfig{}, nil, testLogger())

	yaml := `
id: r3
name: suspicious process or command
type: simple
severity: medium
detection:
  selection:
    "process.name": "powershell.exe"
  condition: "selection1 or selection2"
`

	r, err := l.LoadFromYAML(yaml)
	require.NoError(t, err)
	require.NotNil(t, r.ParsedConditions)
	assert.Equal(t, LogicOr, r.ParsedConditions.Logic)
}

func TestLoadFromYAMLBuildsNegatedFilterGroup(t *testing.T) {
	l := NewLoader(LoaderConfig{}, nil, testLogger())

	yaml := `
id: r4
name: download outside allowlist
type: simple
severity: high
detection:
  selection:
    "process.name|endswith": ".exe"
  filter:
    "process.parent_name": "trusted_updater.exe"
`

	r, err := l.LoadFromYAML(yaml)
	require.NoError(t, err)
	require.NotNil(t, r.ParsedConditions)
	require.Len(t, r.ParsedConditions.Groups, 2)
	assert.Equal(t, LogicAnd, r.ParsedConditions.Logic)
	assert.False(t, r.ParsedConditions.Groups[0].Negate)
	assert.True(t, r.ParsedConditions.Groups[1].Negate)
	require.Len(t, r.ParsedConditions.Groups[1].Conditions, 1)
	assert.Equal(t, "process.parent_name", r.ParsedConditions.Groups[1].Conditions[0].Field)
}
