package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/pkg/config"
)

func TestDefaultConfigIsUsable(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 1000, cfg.Actor.MailboxCapacity)
	assert.Equal(t, 2, cfg.Gossip.Fanout)
	assert.Equal(t, 2, cfg.Supervisor.FailureThreshold)
	assert.False(t, cfg.Transport.TLSEnabled)
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flmesh.yaml")
	contents := []byte("gossip:\n  fanout: 5\n  peer_id: peer-x\ncoordinator:\n  num_workers: 7\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Gossip.Fanout)
	assert.Equal(t, "peer-x", cfg.Gossip.PeerID)
	assert.Equal(t, 7, cfg.Coordinator.NumWorkers)
	assert.Equal(t, 3, cfg.Gossip.ConvergencePatience, "unset fields still fall back to defaults")
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Storage.Path, cfg.Storage.Path)
}
