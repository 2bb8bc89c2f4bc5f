package lime2node

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v4"
)

func TestDuration_JSON(t *testing.T) {
	var v struct {
		Timeout Duration `json:"timeout"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"timeout": "1m30s"}`), &v))
	assert.Equal(t, 90*time.Second, v.Timeout.Duration)

	require.NoError(t, json.Unmarshal([]byte(`{"timeout": 45}`), &v))
	assert.Equal(t, 45*time.Second, v.Timeout.Duration)

	assert.Error(t, json.Unmarshal([]byte(`{"timeout": "soon"}`), &v))
	assert.Equal(t, 45*time.Second, v.Timeout.Duration, "kept on decode error")

	p, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout": "45s"}`, string(p))
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		Timeout Duration `yaml:"timeout"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("timeout: 2s\n"), &v))
	assert.Equal(t, 2*time.Second, v.Timeout.Duration)

	require.NoError(t, yaml.Unmarshal([]byte("timeout: '30'\n"), &v))
	assert.Equal(t, 30*time.Second, v.Timeout.Duration)

	assert.Error(t, yaml.Unmarshal([]byte("timeout: later\n"), &v))
	assert.Equal(t, 30*time.Second, v.Timeout.Duration, "kept on decode error")

	p, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "timeout: 30s\n", string(p))
}
