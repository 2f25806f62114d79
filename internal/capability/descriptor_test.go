package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

func TestDescribeDefaults(t *testing.T) {
	d := Describe(config.Default(), "1.2.3")

	assert.Equal(t, "ready", d.Status)
	assert.Equal(t, "tr-TR-AhmetNeural", d.Voice)
	assert.Equal(t, "1.2.3", d.Version)
	assert.Equal(t, "/generate", d.Usage.Endpoint)
	assert.Equal(t, "POST", d.Usage.Method)
	assert.Equal(t, "ses.mp3", d.Usage.Body["filename"])
	assert.Contains(t, d.Features, "trailing pad 0.6s")
	assert.Contains(t, d.Features, "libmp3lame at 320k")
}

func TestDescriptorJSONShape(t *testing.T) {
	data, err := json.Marshal(Describe(config.Default(), "dev"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"status", "model", "version", "features", "usage"} {
		assert.Contains(t, decoded, key)
	}
}
