package xenv_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mgmtbroker/pkg/xenv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	conf, err := xenv.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, 5, conf.Workers)
	assert.Equal(t, 30*time.Second, conf.RequestTimeout)
	assert.Equal(t, "tcp", conf.Network)
}

func TestLoadOverride(t *testing.T) {
	t.Setenv("BROKER_SERVICE_WORKERS", "0")
	t.Setenv("BROKER_REQUEST_TIMEOUT", "2s")
	t.Setenv("BROKER_GATEWAY_NETWORK", "ws")
	conf, err := xenv.Load()
	require.NoError(t, err)
	// 越界回退到上限
	assert.Equal(t, 5000, conf.Workers)
	assert.Equal(t, 2*time.Second, conf.RequestTimeout)
	assert.Equal(t, "ws", conf.Network)

	t.Setenv("BROKER_REQUEST_TIMEOUT", "soon")
	_, err = xenv.Load()
	require.Error(t, err)
}

func TestManifest(t *testing.T) {
	data := `
modules:
  - name: ControlService::ConfigProvider
    kind: config
    properties:
      maxConnections: "16"
  - name: ControlService::NamespaceProvider
    kind: namespace
`
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	m, err := xenv.LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Modules, 2)
	assert.Equal(t, "16", m.Modules[0].Properties["maxConnections"])
	assert.Equal(t, "namespace", m.Modules[1].Kind)

	_, err = xenv.ParseManifest([]byte("modules:\n  - name: a\n    kind: config\n  - name: a\n    kind: config\n"))
	require.Error(t, err)
	_, err = xenv.ParseManifest([]byte("modules:\n  - kind: config\n"))
	require.Error(t, err)
	_, err = xenv.LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
