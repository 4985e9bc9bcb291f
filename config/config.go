// Package config holds the runtime settings shared by the CLI and the relay:
// which network addresses are encoded for, the linear fee rate and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	NetworkMainnet  = "mainnet"
	NetworkTestnet3 = "testnet3"
	NetworkRegtest  = "regtest"

	DefaultFeeSatsPerByte = 0.5
	DefaultLogLevel       = "info"
	DefaultRelayAddr      = "127.0.0.1:8088"

	EnvPrefix = "BSVKIT"

	// ConfigDirEnv names the directory holding an optional .env file.
	ConfigDirEnv = "BSVKIT_CONFIG_DIR"
)

// Config defines the runtime parameters of the toolkit.
type Config struct {
	Network        string  `mapstructure:"network"`
	FeeSatsPerByte float64 `mapstructure:"fee_sats_per_byte"`
	LogLevel       string  `mapstructure:"log_level"`
	RelayAddr      string  `mapstructure:"relay_addr"`
}

func (c *Config) ApplyDefaults() {
	if c.Network == "" {
		c.Network = NetworkMainnet
	}
	if c.FeeSatsPerByte == 0 {
		c.FeeSatsPerByte = DefaultFeeSatsPerByte
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.RelayAddr == "" {
		c.RelayAddr = DefaultRelayAddr
	}
}

func (c *Config) Validate() error {
	if _, err := NetParams(c.Network); err != nil {
		return err
	}
	if c.FeeSatsPerByte < 0 {
		return ErrInvalidConfig("fee rate must not be negative")
	}
	return nil
}

// NetParams returns the chain parameters for the configured network.
func (c *Config) NetParams() *chaincfg.Params {
	params, err := NetParams(c.Network)
	if err != nil {
		return &chaincfg.MainNetParams
	}
	return params
}

// NetParams maps a network name to its chain parameters.
func NetParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet3:
		return &chaincfg.TestNet3Params, nil
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, ErrInvalidConfig(fmt.Sprintf("non supported network %s", network))
}

// SetDefaults registers the defaults on v so that flags and env bindings see them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network", NetworkMainnet)
	v.SetDefault("fee_sats_per_byte", DefaultFeeSatsPerByte)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("relay_addr", DefaultRelayAddr)
}

// Load reads the configuration from v (config file, BSVKIT_* env, bound flags).
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDotEnv exports the variables of the .env file in dir, or in
// $BSVKIT_CONFIG_DIR and then the working directory when dir is empty.
// Variables already set in the environment win. It reports whether a file
// was loaded.
func LoadDotEnv(dir string) bool {
	if dir == "" {
		dir = os.Getenv(ConfigDirEnv)
	}
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		return false
	}
	return true
}

// ErrInvalidConfig is returned when a setting is out of range.
type ErrInvalidConfig string

func (e ErrInvalidConfig) Error() string { return string(e) }
