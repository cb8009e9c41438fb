package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetTopLevelFields(t *testing.T) {
	ev := &Event{ID: "evt-1", Source: "apache", EventType: "log", Timestamp: time.Unix(0, 0)}

	v, ok := ev.Get("id")
	assert.True(t, ok)
	assert.Equal(t, "evt-1", v)

	v, ok = ev.Get("source")
	assert.True(t, ok)
	assert.Equal(t, "apache", v)
}

func TestGetDottedDataPath(t *testing.T) {
	ev := &Event{
		Data: map[string]interface{}{
			"request": map[string]interface{}{
				"status": 200,
			},
		},
	}

	v, ok := ev.Get("request.status")
	assert.True(t, ok)
	assert.Equal(t, 200, v)

	_, ok = ev.Get("request.missing")
	assert.False(t, ok)

	_, ok = ev.Get("nope.nope")
	assert.False(t, ok)
}

func TestGetDottedThroughNonMap(t *testing.T) {
	ev := &Event{Data: map[string]interface{}{"status": 200}}

	_, ok := ev.Get("status.nested")
	assert.False(t, ok)
}
