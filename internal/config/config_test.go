package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fogsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Environment.NumNodes)
	assert.Equal(t, cfg.Environment.NumNodes, cfg.Agent.NumNodes)
	assert.Equal(t, models.DrainBoth, cfg.Environment.DrainPolicy)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
environment:
  nodes: 3
  drain_policy: backup_first
agent:
  workload_scale: 2.0e-10
generator:
  tasks: 25
  deadline: {min: 10, max: 20}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Environment.NumNodes)
	assert.Equal(t, 3, cfg.Agent.NumNodes)
	assert.Equal(t, models.DrainBackupFirst, cfg.Environment.DrainPolicy)
	assert.Equal(t, 100.0, cfg.Environment.Capacity)
	assert.Equal(t, models.DefaultBrokerParams(), cfg.Environment.Broker)
	assert.Equal(t, 0.1, cfg.Agent.LearningRate)
	assert.Equal(t, 2.0e-10, cfg.Agent.WorkloadScale)
	assert.Equal(t, 25, cfg.Generator.Tasks)
	assert.Equal(t, int64(42), cfg.Generator.Seed)
	assert.Equal(t, 10, cfg.Generator.Ranges.Deadline.Min)
	assert.Equal(t, 50, cfg.Generator.Ranges.Load.Min)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero nodes", "environment: {nodes: 0}"},
		{"unknown drain policy", "environment: {drain_policy: random}"},
		{"zero noise", "environment: {broker: {noise: 0}}"},
		{"learning rate", "agent: {learning_rate: 2}"},
		{"inverted range", "generator: {size: {min: 10, max: 1}}"},
		{"bad port", "server: {port: 0}"},
		{"sweep nodes", "sweep: {node_counts: [3, 0]}"},
		{"log level", "log: {level: loud}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			var verrs models.ValidationErrors
			assert.ErrorAs(t, err, &verrs)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "environment: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "fogsim.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Environment.NumNodes)
	assert.Equal(t, []int{5, 10, 20}, cfg.Sweep.NodeCounts)
}
