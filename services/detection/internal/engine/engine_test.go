package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/rule"
)

func TestGetNestedValueWalksDottedPath(t *testing.T) {
	data := map[string]interface{}{
		"process": map[string]interface{}{
			"executable": "powershell.exe",
		},
	}

	v, ok := getNestedValue(data, "process.executable")
	assert.True(t, ok)
	assert.Equal(t, "powershell.exe", v)

	_, ok = getNestedValue(data, "process.missing")
	assert.False(t, ok)

	_, ok = getNestedValue(data, "process.executable.nope")
	assert.False(t, ok)
}

func TestSplitDotsHandlesSingleAndMultiSegmentPaths(t *testing.T) {
	assert.Equal(t, []string{"a"}, splitDots("a"))
	assert.Equal(t, []string{"a", "b", "c"}, splitDots("a.b.c"))
	assert.Equal(t, []string{"", "a"}, splitDots(".a"))
}

func TestCandidateForEventFiltersByTypeAndSource(t *testing.T) {
	r := &rule.Rule{EventTypes: []string{"authentication"}, Sources: []string{"okta"}}

	assert.True(t, candidateForEvent(r, &event.Event{EventType: "authentication", Source: "okta"}))
	assert.False(t, candidateForEvent(r, &event.Event{EventType: "network", Source: "okta"}))
	assert.False(t, candidateForEvent(r, &event.Event{EventType: "authentication", Source: "azure_ad"}))
}

func TestCandidateForEventWithNoScopeMatchesEverything(t *testing.T) {
	r := &rule.Rule{}
	assert.True(t, candidateForEvent(r, &event.Event{EventType: "anything", Source: "anything"}))
}
