package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/BoldBitcoinWallet/bsvkit/bsm"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *app) bsmCmd() *cobra.Command {
	bsmCmd := &cobra.Command{
		Use:   "bsm",
		Short: "Sign and verify Bitcoin Signed Messages",
	}

	var key string
	signCmd := &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message, printing the base64 compact signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := parsePrivateKey(key)
			if err != nil {
				return err
			}
			sig, err := bsm.SignBase64(priv, []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	signCmd.Flags().StringVar(&key, "key", "", "private key (WIF or hex)")
	signCmd.MarkFlagRequired("key")

	verifyCmd := &cobra.Command{
		Use:   "verify <message> <signature> <address>",
		Short: "Verify a base64 signature against an address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bsm.VerifyBase64([]byte(args[0]), args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("valid"))
			return nil
		},
	}

	recoverCmd := &cobra.Command{
		Use:   "recover <message> <signature>",
		Short: "Recover the signer address of a base64 signature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := base64.StdEncoding.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("%w: %v", bsm.ErrInvalidSignature, err)
			}
			addr, err := bsm.RecoverAddress([]byte(args[0]), sig, a.cfg.NetParams())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}

	var addrKey string
	var uncompressed bool
	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Print the P2PKH address of a private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := parsePrivateKey(addrKey)
			if err != nil {
				return err
			}
			addr, err := bsm.Address(priv.PubKey(), !uncompressed, a.cfg.NetParams())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	addressCmd.Flags().StringVar(&addrKey, "key", "", "private key (WIF or hex)")
	addressCmd.Flags().BoolVar(&uncompressed, "uncompressed", false, "use the uncompressed public key")
	addressCmd.MarkFlagRequired("key")

	bsmCmd.AddCommand(signCmd, verifyCmd, recoverCmd, addressCmd)
	return bsmCmd
}
