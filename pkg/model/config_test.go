package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `etcd_cluster:
  endpoints: ["localhost:2379"]

admin_web:
  host: "localhost"
  port: "9999"

testbed:
  number_of_peers: 10
  use_super_peers: true
  file_to_send: "./data/mydocument.pdf"
  seed: 42
  data_dir: "./data"
  results_dir: "./results"
  container_image: "image-testbed"
  tracker_image: "image-tracker"

runtime:
  deploy_command: "containerlab"
  exec_command: "docker"
  container_prefix: "p2p-containerlab-topology"
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:2379"}, config.ETCD.Endpoints)
	assert.Equal(t, "9999", config.AdminWeb.Port)
	assert.Equal(t, 10, config.Testbed.NumberOfPeers)
	assert.True(t, config.Testbed.UseSuperPeers)
	assert.Equal(t, int64(42), config.Testbed.Seed)
	assert.Equal(t, "docker", config.Runtime.ExecCommand)
}

func TestLoadConfig_rejectsZeroPeers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("testbed:\n  number_of_peers: 0\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
