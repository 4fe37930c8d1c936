// Package config loads rpmsgsock.Config from file, environment, and
// defaults using a viper + mapstructure + validator stack: file values
// first, then environment overrides, then the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/rpmsgsock/rpmsgsock"
)

// FileConfig is the on-disk/env-var shape: the same four fields as
// rpmsgsock.Config, carrying the mapstructure, validate and yaml tags the
// loader needs.
type FileConfig struct {
	LocalCPU     string `mapstructure:"local_cpu" validate:"required" yaml:"local_cpu"`
	RingCapacity int    `mapstructure:"ring_capacity" validate:"omitempty,gt=0" yaml:"ring_capacity"`
	PollWaiters  int    `mapstructure:"poll_waiters" validate:"omitempty,gt=0" yaml:"poll_waiters"`
	MaxBacklog   int    `mapstructure:"max_backlog" validate:"omitempty,gt=0" yaml:"max_backlog"`
}

var validate = validator.New()

// Load reads configuration from RPMSGSOCK_-prefixed environment variables,
// configPath (if non-empty and present), then defaults, in that precedence
// order (highest first), and validates the result.
func Load(configPath string) (rpmsgsock.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RPMSGSOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"local_cpu", "ring_capacity", "poll_waiters", "max_backlog"} {
		if err := v.BindEnv(key); err != nil {
			return rpmsgsock.Config{}, fmt.Errorf("rpmsgsock/config: bind env %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return rpmsgsock.Config{}, fmt.Errorf("rpmsgsock/config: read config file: %w", err)
			}
		}
	}

	fc := FileConfig{
		RingCapacity: rpmsgsock.DefaultRingCapacity,
		PollWaiters:  rpmsgsock.DefaultPollWaiters,
		MaxBacklog:   rpmsgsock.DefaultMaxBacklog,
	}
	if err := v.Unmarshal(&fc, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return rpmsgsock.Config{}, fmt.Errorf("rpmsgsock/config: unmarshal: %w", err)
	}
	if err := validate.Struct(fc); err != nil {
		return rpmsgsock.Config{}, fmt.Errorf("rpmsgsock/config: validation failed: %w", err)
	}

	return rpmsgsock.Config{
		LocalCPU:     fc.LocalCPU,
		RingCapacity: fc.RingCapacity,
		PollWaiters:  fc.PollWaiters,
		MaxBacklog:   fc.MaxBacklog,
	}, nil
}
