// Package config resolves the immutable ProxyConfig from CLI flags,
// MCPMON_* environment variables, and an optional .mcpmon.yaml, using
// viper with flag > env > file > default precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	mcperrors "github.com/neilopet/mcpmon/internal/errors"
	"github.com/neilopet/mcpmon/internal/logger"
)

const (
	keyWatch   = "watch"
	keyDelay   = "delay"
	keyVerbose = "verbose"

	keyArchiveDB        = "archive-db"
	keyArchiveThreshold = "archive-threshold"
	keyAuditLog         = "audit-log"

	defaultRestartDelay = 300 * time.Millisecond
	defaultKillDelay    = 100 * time.Millisecond
	defaultReadyDelay   = 200 * time.Millisecond
)

// ProxyConfig is the immutable configuration a Proxy is built from.
type ProxyConfig struct {
	Command     string
	CommandArgs []string
	WatchTargets []string
	Env          map[string]string

	RestartDelay time.Duration
	KillDelay    time.Duration
	ReadyDelay   time.Duration

	SessionID string
	Verbose   bool

	MetricsAddr string

	// ArchiveDBPath, if non-empty, enables the response-archive extension,
	// storing it at this SQLite file path.
	ArchiveDBPath         string
	ArchiveThresholdBytes int

	// AuditLogPath, if non-empty, enables the audit-log extension,
	// appending JSON lines to this file.
	AuditLogPath string
}

// NewViper returns a Viper instance configured to read an optional
// .mcpmon.yaml from the current directory or $HOME, with MCPMON_*
// environment variables bound to the watch/delay/verbose keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(".mcpmon")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix("mcpmon")
	v.AutomaticEnv()
	_ = v.BindEnv(keyWatch, "MCPMON_WATCH")
	_ = v.BindEnv(keyDelay, "MCPMON_DELAY")
	_ = v.BindEnv(keyVerbose, "MCPMON_VERBOSE")
	_ = v.BindEnv(keyArchiveDB, "MCPMON_ARCHIVE_DB")
	_ = v.BindEnv(keyArchiveThreshold, "MCPMON_ARCHIVE_THRESHOLD")
	_ = v.BindEnv(keyAuditLog, "MCPMON_AUDIT_LOG")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Warnf("config: failed to read .mcpmon.yaml: %v", err)
		}
	}
	return v
}

// BindFlags wires the run command's --watch/--delay/--verbose flags into v
// so that flag > env > file > default precedence holds.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, name := range []string{keyWatch, keyDelay, keyVerbose, keyArchiveDB, keyArchiveThreshold, keyAuditLog} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return mcperrors.NewConfigInvalidError(fmt.Sprintf("bind flag %q", name), err)
			}
		}
	}
	return nil
}

// Load resolves a ProxyConfig from v plus the positional child command and
// its arguments (everything after `run -- `).
func Load(v *viper.Viper, command string, args []string) (*ProxyConfig, error) {
	if command == "" {
		return nil, mcperrors.NewConfigInvalidError("config: no command given to run", nil)
	}

	delayMs := v.GetInt(keyDelay)
	var restartDelay time.Duration
	if delayMs > 0 {
		restartDelay = time.Duration(delayMs) * time.Millisecond
	} else {
		restartDelay = defaultRestartDelay
	}

	return &ProxyConfig{
		Command:      command,
		CommandArgs:  args,
		WatchTargets: splitTargets(v.GetString(keyWatch)),
		RestartDelay: restartDelay,
		KillDelay:    defaultKillDelay,
		ReadyDelay:   defaultReadyDelay,
		SessionID:    uuid.NewString(),
		Verbose:      v.GetBool(keyVerbose),

		ArchiveDBPath:         v.GetString(keyArchiveDB),
		ArchiveThresholdBytes: v.GetInt(keyArchiveThreshold),
		AuditLogPath:          v.GetString(keyAuditLog),
	}, nil
}

func splitTargets(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	targets := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			targets = append(targets, p)
		}
	}
	return targets
}
