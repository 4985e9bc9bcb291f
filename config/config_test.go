package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, NetworkMainnet, c.Network)
	require.Equal(t, DefaultFeeSatsPerByte, c.FeeSatsPerByte)
	require.Equal(t, &chaincfg.MainNetParams, c.NetParams())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BSVKIT_NETWORK", "testnet3")
	t.Setenv("BSVKIT_FEE_SATS_PER_BYTE", "1.25")
	c, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, NetworkTestnet3, c.Network)
	require.Equal(t, 1.25, c.FeeSatsPerByte)
	require.Equal(t, &chaincfg.TestNet3Params, c.NetParams())
}

func TestValidate(t *testing.T) {
	c := &Config{Network: "litecoin"}
	c.ApplyDefaults()
	var invalid ErrInvalidConfig
	require.ErrorAs(t, c.Validate(), &invalid)

	c = &Config{FeeSatsPerByte: -1}
	c.ApplyDefaults()
	require.Error(t, c.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.False(t, LoadDotEnv(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BSVKIT_RELAY_ADDR=0.0.0.0:9999\n"), 0o600))
	require.NoError(t, os.Unsetenv("BSVKIT_RELAY_ADDR"))
	t.Cleanup(func() { os.Unsetenv("BSVKIT_RELAY_ADDR") })

	require.True(t, LoadDotEnv(dir))
	c, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", c.RelayAddr)

	// the environment wins over the file
	t.Setenv("BSVKIT_RELAY_ADDR", "127.0.0.1:1")
	require.True(t, LoadDotEnv(dir))
	c, err = Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1", c.RelayAddr)
}
