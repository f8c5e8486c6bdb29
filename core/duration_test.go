package core

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_Decode(t *testing.T) {
	var cfg struct {
		Timeout Duration `json:"timeout" yaml:"timeout"`
	}

	require.NoError(t, sonic.Unmarshal([]byte(`{"timeout":"1500ms"}`), &cfg))
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout.Std())

	require.NoError(t, sonic.Unmarshal([]byte(`{"timeout":2.5}`), &cfg))
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout.Std())

	require.NoError(t, yaml.Unmarshal([]byte("timeout: 30s\n"), &cfg))
	assert.Equal(t, 30*time.Second, cfg.Timeout.Std())

	assert.Error(t, sonic.Unmarshal([]byte(`{"timeout":"soon"}`), &cfg))
}

func TestDuration_EncodesAsString(t *testing.T) {
	data, err := sonic.Marshal(struct {
		Timeout Duration `json:"timeout"`
	}{Timeout: Duration(2 * time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"2s"}`, string(data))
}
