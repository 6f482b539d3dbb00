package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v, "node", []string{"server.js"})
	require.NoError(t, err)

	assert.Equal(t, "node", cfg.Command)
	assert.Equal(t, []string{"server.js"}, cfg.CommandArgs)
	assert.Equal(t, defaultRestartDelay, cfg.RestartDelay)
	assert.Equal(t, defaultKillDelay, cfg.KillDelay)
	assert.Equal(t, defaultReadyDelay, cfg.ReadyDelay)
	assert.Nil(t, cfg.WatchTargets)
	assert.NotEmpty(t, cfg.SessionID)
}

func TestLoadParsesWatchAndDelayFromViper(t *testing.T) {
	v := viper.New()
	v.Set(keyWatch, "server.js, lib/")
	v.Set(keyDelay, 500)
	v.Set(keyVerbose, true)

	cfg, err := Load(v, "node", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"server.js", "lib/"}, cfg.WatchTargets)
	assert.Equal(t, 500*time.Millisecond, cfg.RestartDelay)
	assert.True(t, cfg.Verbose)
}

func TestLoadRejectsEmptyCommand(t *testing.T) {
	v := viper.New()
	_, err := Load(v, "", nil)
	assert.Error(t, err)
}

func TestSplitTargetsTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTargets(" a , ,b "))
	assert.Nil(t, splitTargets("  "))
}

func TestLoadParsesExtensionFlags(t *testing.T) {
	v := viper.New()
	v.Set(keyArchiveDB, "/tmp/archive.db")
	v.Set(keyArchiveThreshold, 4096)
	v.Set(keyAuditLog, "/tmp/audit.jsonl")

	cfg, err := Load(v, "node", nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/archive.db", cfg.ArchiveDBPath)
	assert.Equal(t, 4096, cfg.ArchiveThresholdBytes)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.AuditLogPath)
}

func TestLoadLeavesExtensionsDisabledWhenUnset(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v, "node", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.ArchiveDBPath)
	assert.Empty(t, cfg.AuditLogPath)
}

func TestEachLoadCallMintsAFreshSessionID(t *testing.T) {
	v := viper.New()
	a, err := Load(v, "node", nil)
	require.NoError(t, err)
	b, err := Load(v, "node", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)
}
