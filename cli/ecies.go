package cli

import (
	"fmt"

	"github.com/BoldBitcoinWallet/bsvkit/ecies"
	"github.com/spf13/cobra"
)

type eciesFlags struct {
	noKey    bool
	shortTag bool
}

func (f *eciesFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noKey, "no-key", false, "payload omits the sender public key")
	cmd.Flags().BoolVar(&f.shortTag, "short-tag", false, "use a 4 byte MAC tag")
}

func (f *eciesFlags) options() []ecies.Option {
	var opts []ecies.Option
	if f.noKey {
		opts = append(opts, ecies.WithNoKey())
	}
	if f.shortTag {
		opts = append(opts, ecies.WithShortTag())
	}
	return opts
}

func (a *app) eciesCmd() *cobra.Command {
	eciesCmd := &cobra.Command{
		Use:   "ecies",
		Short: "Encrypt and decrypt BIE1 payloads",
	}

	keypairCmd := &cobra.Command{
		Use:   "keypair",
		Short: "Generate a key pair as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := ecies.GenerateKeyPair()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp)
			return nil
		},
	}

	pubkeyCmd := &cobra.Command{
		Use:   "pubkey <privateKey>",
		Short: "Print the compressed public key of a hex private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := ecies.PubKeyFromPrivateKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pub)
			return nil
		},
	}

	var (
		encFlags eciesFlags
		to, from string
	)
	encryptCmd := &cobra.Command{
		Use:   "encrypt <data>",
		Short: "Encrypt data to a public key, printing base64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ecies.EncryptString(args[0], from, to, encFlags.options()...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	encryptCmd.Flags().StringVar(&to, "public-key", "", "recipient public key (hex)")
	encryptCmd.Flags().StringVar(&from, "private-key", "", "sender private key (hex, ephemeral if empty)")
	encryptCmd.MarkFlagRequired("public-key")
	encFlags.register(encryptCmd)

	var (
		decFlags    eciesFlags
		key, sender string
	)
	decryptCmd := &cobra.Command{
		Use:   "decrypt <encryptedData>",
		Short: "Decrypt a base64 payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ecies.DecryptString(args[0], key, sender, decFlags.options()...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	decryptCmd.Flags().StringVar(&key, "private-key", "", "recipient private key (hex)")
	decryptCmd.Flags().StringVar(&sender, "public-key", "", "sender public key (hex), required with --no-key")
	decryptCmd.MarkFlagRequired("private-key")
	decFlags.register(decryptCmd)

	eciesCmd.AddCommand(keypairCmd, pubkeyCmd, encryptCmd, decryptCmd)
	return eciesCmd
}
