package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/worker/internal/options"
)

func TestMergeConfigIntoViper(t *testing.T) {
	newRootCmd()
	raw := `
node_id: worker-7
manager_host: manager.internal
poll_interval: 1s
total_cpu: 1.5
log:
  level: debug
`
	expected := options.DefaultOptions()
	expected.NodeID = "worker-7"
	expected.ManagerHost = "manager.internal"
	expected.PollInterval = model.Duration(time.Second)
	expected.TotalCPU = 1.5
	expected.Log.Level = "debug"

	opts, err := mergeConfigIntoViper([]byte(raw))
	assert.NilError(t, err)
	assert.DeepEqual(t, opts, expected)
}

func TestInitializeOptionsPrecedence(t *testing.T) {
	cmd := newRootCmd()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	assert.NilError(t, os.WriteFile(path, []byte("manager_port: 9000\nnode_id: from-file\n"), 0o600))

	t.Setenv("CORRAL_CONFIG_FILE", path)
	t.Setenv("CORRAL_NODE_ID", "from-env")
	run, _, err := cmd.Find([]string{"run"})
	assert.NilError(t, err)
	assert.NilError(t, run.Flags().Set("manager-host", "from-flag"))

	opts, err := initializeOptions()
	assert.NilError(t, err)
	assert.Equal(t, opts.ManagerPort, 9000)
	assert.Equal(t, opts.NodeID, "from-env")
	assert.Equal(t, opts.ManagerHost, "from-flag")
	assert.Equal(t, opts.Address, "from-env")
}

func TestInitializeOptionsMissingConfigFile(t *testing.T) {
	newRootCmd()
	t.Setenv("CORRAL_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := initializeOptions()
	assert.ErrorContains(t, err, "error finding configuration file")
}

func TestInitializeOptionsInvalid(t *testing.T) {
	newRootCmd()
	t.Setenv("CORRAL_CONFIG_FILE", filepath.Join(t.TempDir(), "empty.yaml"))
	assert.NilError(t, os.WriteFile(os.Getenv("CORRAL_CONFIG_FILE"), []byte("{}"), 0o600))
	t.Setenv("CORRAL_STARTED_CACHE_SIZE", "0")

	_, err := initializeOptions()
	assert.ErrorContains(t, err, "illegal configuration")
}
