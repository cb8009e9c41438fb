package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
)

func TestIndexNameIsMonthlyUTC(t *testing.T) {
	ts := time.Date(2026, 8, 6, 23, 0, 0, 0, time.FixedZone("x", 3*3600))
	assert.Equal(t, "logs-2026.08", IndexName(ts))
}

func TestPutWritesToDerivedIndex(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"_index": "logs-2026.08", "_id": "evt-1", "_version": 1, "result": "created",
		})
	}))
	defer srv.Close()

	store, err := NewFromAddresses([]string{srv.URL})
	require.NoError(t, err)

	ev := &event.Event{
		ID:        "evt-1",
		Source:    "apache",
		EventType: "log",
		Timestamp: time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC),
		Data:      map[string]interface{}{"status": 200},
	}

	id, err := store.Put(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, strings.Contains(gotPath, "logs-2026.08"))
	assert.Equal(t, "apache", gotBody["source"])
}

func TestEnsureTemplateRegistersPattern(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"acknowledged": true})
	}))
	defer srv.Close()

	store, err := NewFromAddresses([]string{srv.URL})
	require.NoError(t, err)

	err = store.EnsureTemplate(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(gotPath, "logs-template"))
	patterns, _ := gotBody["index_patterns"].([]interface{})
	require.Len(t, patterns, 1)
	assert.Equal(t, "logs-*", patterns[0])
}
