package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/cellcount-mcp/internal/detection"
)

// isolate runs the test in an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	s, err := Load(New(), "")

	require.NoError(t, err)
	assert.Equal(t, "models/best.pt", s.Model.Path)
	assert.Equal(t, 60*time.Second, s.Model.Timeout)
	assert.Equal(t, 0.25, s.Detect.Conf)
	assert.Equal(t, 0.45, s.Detect.IOU)
	assert.True(t, s.Detect.Labels)
	assert.True(t, s.Detect.Confidence)
	assert.Equal(t, 0, s.Batch.Workers)
	assert.False(t, s.Batch.ConcurrentModel)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, 30*time.Minute, s.Server.ResultTTL)

	assert.Equal(t, detection.DefaultOptions(), s.DetectOptions())
}

func TestLoad_FileEnvAndFlagPrecedence(t *testing.T) {
	dir := isolate(t)
	yaml := `
model:
  path: /weights/cells.pt
  timeout: 5s
detect:
  conf: 0.4
  iou: 0.5
  labels: false
batch:
  workers: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cellcount.yaml"), []byte(yaml), 0o600))
	t.Setenv("CELLCOUNT_DETECT_IOU", "0.6")
	t.Setenv("CELLCOUNT_LOG_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Float64("conf", 0.25, "")
	fs.Int("workers", 0, "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse([]string{"--conf", "0.7"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	s, err := Load(v, "")

	require.NoError(t, err)
	assert.Equal(t, "/weights/cells.pt", s.Model.Path, "file")
	assert.Equal(t, 5*time.Second, s.Model.Timeout, "file")
	assert.Equal(t, 0.6, s.Detect.IOU, "env beats file")
	assert.Equal(t, "debug", s.Log.Level, "env")
	assert.Equal(t, 0.7, s.Detect.Conf, "changed flag beats file")
	assert.Equal(t, 3, s.Batch.Workers, "unchanged flag leaves file value")
	assert.False(t, s.Detect.Labels)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detect:\n  conf: 0.9\n"), 0o600))

	s, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, s.Detect.Conf)

	_, err = Load(New(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"conf out of range", map[string]string{"CELLCOUNT_DETECT_CONF": "1.5"}},
		{"negative workers", map[string]string{"CELLCOUNT_BATCH_WORKERS": "-1"}},
		{"bad log level", map[string]string{"CELLCOUNT_LOG_LEVEL": "chatty"}},
		{"zero timeout", map[string]string{"CELLCOUNT_MODEL_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			_, err := Load(New(), "")
			assert.Error(t, err)
		})
	}
}

func TestClientConfig(t *testing.T) {
	isolate(t)
	t.Setenv("CELLCOUNT_MODEL_ENDPOINT", "http://gpu-box:9000")

	s, err := Load(New(), "")
	require.NoError(t, err)

	cfg := s.ClientConfig()
	assert.Equal(t, "http://gpu-box:9000", cfg.Endpoint)
	assert.Equal(t, "models/best.pt", cfg.ModelPath)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}
