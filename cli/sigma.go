package cli

import (
	"errors"

	"github.com/BoldBitcoinWallet/bsvkit/sigma"
	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/spf13/cobra"
)

type sigmaTarget struct {
	vout     int
	instance int
	vin      int
}

func (t *sigmaTarget) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&t.vout, "vout", 0, "target output index")
	cmd.Flags().IntVar(&t.instance, "instance", 0, "signature instance within the output")
	cmd.Flags().IntVar(&t.vin, "vin", sigma.UseTargetVout, "reference input index (-1 uses --vout)")
}

func (a *app) sigmaCmd() *cobra.Command {
	sigmaCmd := &cobra.Command{
		Use:   "sigma",
		Short: "Sign and verify Sigma output signatures",
	}

	var (
		signTarget sigmaTarget
		key        string
	)
	signCmd := &cobra.Command{
		Use:   "sign <txHex>",
		Short: "Sign an output and print the signed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := parsePrivateKey(key)
			if err != nil {
				return err
			}
			tx, extended, err := txbuilder.ParseAnyHex(args[0])
			if err != nil {
				return err
			}
			sg := sigma.New(tx, signTarget.vout, signTarget.instance, signTarget.vin, sigma.WithNetParams(a.cfg.NetParams()))
			sig, err := sg.Sign(priv)
			if err != nil {
				return err
			}
			h, err := encodeTx(sig.SignedTx, extended)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"address":   sig.Address,
				"signature": sig.Signature,
				"vin":       sig.Vin,
				"txid":      sig.SignedTx.TxHash().String(),
				"hex":       h,
			})
		},
	}
	signCmd.Flags().StringVar(&key, "key", "", "signing private key (WIF or hex)")
	signCmd.MarkFlagRequired("key")
	signTarget.register(signCmd)

	var (
		verifyTarget sigmaTarget
		address      string
	)
	verifyCmd := &cobra.Command{
		Use:   "verify <txHex>",
		Short: "Verify a signature instance of an output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, _, err := txbuilder.ParseAnyHex(args[0])
			if err != nil {
				return err
			}
			sg := sigma.New(tx, verifyTarget.vout, verifyTarget.instance, verifyTarget.vin, sigma.WithNetParams(a.cfg.NetParams()))
			ok, err := sg.Verify(address)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("signature is not valid")
			}
			return printJSON(cmd, map[string]any{
				"valid":   true,
				"address": sg.Sig().Address,
			})
		},
	}
	verifyCmd.Flags().StringVar(&address, "address", "", "expected signer address")
	verifyTarget.register(verifyCmd)

	sigmaCmd.AddCommand(signCmd, verifyCmd)
	return sigmaCmd
}

func encodeTx(tx *txbuilder.Tx, extended bool) (string, error) {
	if extended {
		return tx.ExtendedHex()
	}
	return tx.Hex()
}
