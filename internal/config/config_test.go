package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	conf, err := Load([]byte(`
path: /tmp/captures
rtmp: rtmp://localhost/live
`))
	require.NoError(t, err)
	require.Equal(t, "/tmp/captures", conf.Path)
	require.Equal(t, "rtmp://localhost/live", conf.RTMPBase)
	require.False(t, conf.Events)
	require.False(t, conf.LegacyKeyframeClobber)
	require.Equal(t, defaultWriteQueueSize, conf.WriteQueueSize)
}

func TestLoadHonorsExplicitWriteQueueSize(t *testing.T) {
	conf, err := Load([]byte("path: /tmp\nwrite_queue_size: 64\n"))
	require.NoError(t, err)
	require.Equal(t, 64, conf.WriteQueueSize)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := Load([]byte("path: [this is not\n  a valid document"))
	require.Error(t, err)
}

func TestValidateRequiresPath(t *testing.T) {
	conf := &Config{}
	require.Error(t, conf.Validate())
}

func TestValidateCreatesCaptureDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "captures")
	conf := &Config{Path: dir}
	require.NoError(t, conf.Validate())
	require.DirExists(t, dir)
}
