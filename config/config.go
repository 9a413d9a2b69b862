// Package config loads the settings a Cluster client is constructed with:
// entry addresses, pool timeouts, the default replica-read strategy, and
// logging configuration, via viper so callers can supply a YAML file,
// environment variables, or both.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rmker/clustercore/connection"
	"github.com/rmker/clustercore/logger"
)

// Config is the fully-resolved set of knobs a Cluster needs at
// construction time.
type Config struct {
	// EntryAddrs are the seed addresses used to discover cluster topology.
	EntryAddrs []string

	// DefaultPoolTimeout bounds how long a borrowed connection may sit
	// idle in a node's pool before being recycled.
	DefaultPoolTimeout time.Duration

	// ReadFromReplicaStrategy is applied to every route that allows a
	// replica read.
	ReadFromReplicaStrategy connection.ReadFromReplicaStrategy

	// ClientAZ is this client's own availability zone, read from the
	// client_az key. The AZAffinity strategy takes its zone from
	// read_from_replica.az, not from this field.
	ClientAZ string

	// LogLevel and LogFilePath configure the logger package.
	LogLevel   logger.Level
	LogFilePath string
}

// defaults mirrors the teacher's DefaultPoolTimeout constant naming.
const defaultPoolTimeout = 10 * time.Second

// Load reads configuration from path (if non-empty) and the environment,
// with environment variables prefixed CLUSTERCORE_ taking precedence over
// file values. Missing optional keys fall back to sane defaults rather
// than erroring.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLUSTERCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("pool.timeout", defaultPoolTimeout)
	v.SetDefault("read_from_replica.strategy", "round_robin")
	v.SetDefault("read_from_replica.az", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	strategy, err := parseStrategy(v.GetString("read_from_replica.strategy"), v.GetString("read_from_replica.az"))
	if err != nil {
		return nil, err
	}

	level, err := parseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	return &Config{
		EntryAddrs:               v.GetStringSlice("entry_addrs"),
		DefaultPoolTimeout:       v.GetDuration("pool.timeout"),
		ReadFromReplicaStrategy:  strategy,
		ClientAZ:                 v.GetString("client_az"),
		LogLevel:                 level,
		LogFilePath:              v.GetString("log.file"),
	}, nil
}

func parseStrategy(kind, az string) (connection.ReadFromReplicaStrategy, error) {
	switch strings.ToLower(kind) {
	case "", "always_from_primary", "primary":
		return connection.FromPrimary(), nil
	case "round_robin":
		return connection.FromRoundRobin(), nil
	case "az_affinity":
		if az == "" {
			return connection.ReadFromReplicaStrategy{}, fmt.Errorf("config: read_from_replica.strategy=az_affinity requires read_from_replica.az")
		}
		return connection.FromAZAffinity(az), nil
	default:
		return connection.ReadFromReplicaStrategy{}, fmt.Errorf("config: unknown read_from_replica.strategy %q", kind)
	}
}

func parseLevel(s string) (logger.Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return logger.Error, nil
	case "warn", "warning":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	case "debug":
		return logger.Debug, nil
	case "trace":
		return logger.Trace, nil
	default:
		return logger.Info, fmt.Errorf("config: unknown log.level %q", s)
	}
}
