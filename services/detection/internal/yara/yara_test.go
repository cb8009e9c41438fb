package yara

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractContentDecodesBase64(t *testing.T) {
	raw := []byte("MZ\x90\x00")
	encoded := base64.StdEncoding.EncodeToString(raw)
	got, err := ExtractContent(encoded, false)
	assert.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestExtractContentFallsBackToRawString(t *testing.T) {
	got, err := ExtractContent("not-base64-!!!", false)
	assert.NoError(t, err)
	assert.Equal(t, []byte("not-base64-!!!"), got)
}

func TestExtractContentReadsPath(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "content")
	assert.NoError(t, err)
	_, err = f.WriteString("payload")
	assert.NoError(t, err)
	f.Close()

	got, err := ExtractContent(f.Name(), true)
	assert.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestScanBytesErrorsWithoutCompile(t *testing.T) {
	s := NewScanner(0)
	_, err := s.ScanBytes("missing-rule", []byte("data"))
	assert.Error(t, err)
}
