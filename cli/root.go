// Package cli is the bsvkit command line: BSM messages, ECIES payloads,
// Sigma signatures, draft transactions, paymail handles and the relay.
package cli

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/BoldBitcoinWallet/bsvkit/config"
	"github.com/BoldBitcoinWallet/bsvkit/logs"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	AppName    = "bsvkit"
	AppVersion = "1.0.0"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	cfg     *config.Config
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: "Bitcoin SV signing toolkit",
		Long: `A command-line tool for Bitcoin SV signing primitives:

- Bitcoin Signed Messages (sign, verify, recover)
- ECIES (BIE1) encryption between secp256k1 key pairs
- Sigma output signatures
- Draft transactions: fees, P2PKH and multisig signing
- Paymail handles and capabilities
- An HTTP relay for co-signers`,
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.bsvkit.yaml)")
	pf.BoolVar(&a.verbose, "verbose", false, "print library logs to stderr")
	pf.String("network", config.NetworkMainnet, "network: mainnet, testnet3 or regtest")
	pf.Float64("fee-rate", config.DefaultFeeSatsPerByte, "fee rate in satoshis per byte")
	pf.String("log-level", config.DefaultLogLevel, "log level when --verbose is set")

	// Bind flags to viper
	a.v.BindPFlag("network", pf.Lookup("network"))
	a.v.BindPFlag("fee_sats_per_byte", pf.Lookup("fee-rate"))
	a.v.BindPFlag("log_level", pf.Lookup("log-level"))

	rootCmd.AddCommand(
		a.bsmCmd(),
		a.eciesCmd(),
		a.sigmaCmd(),
		a.txCmd(),
		a.paymailCmd(),
		a.relayCmd(),
	)
	return rootCmd
}

// initConfig reads in the .env file, the config file and BSVKIT_*
// environment variables.
func (a *app) initConfig() error {
	if config.LoadDotEnv("") && a.verbose {
		fmt.Fprintln(os.Stderr, color.HiBlackString("Loaded .env"))
	}
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("." + AppName)
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else if a.verbose {
		fmt.Fprintln(os.Stderr, color.HiBlackString("Using config file: %s", a.v.ConfigFileUsed()))
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if !a.verbose {
		logs.DisableLogs()
		return nil
	}
	logs.EnableLogs()
	return logs.SetLevel(cfg.LogLevel)
}

// parsePrivateKey accepts WIF or 32 byte hex.
func parsePrivateKey(s string) (*btcec.PrivateKey, error) {
	if wif, err := btcutil.DecodeWIF(s); err == nil {
		return wif.PrivKey, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != btcec.PrivKeyBytesLen {
		return nil, errors.New("invalid private key: expected WIF or 32 byte hex")
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
