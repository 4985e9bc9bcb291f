package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"
)

// parseSignature reads an external signature as <prevTxid>:<prevIndex>:<sigHex>.
func parseSignature(s string) (txbuilder.SignatureRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return txbuilder.SignatureRequest{}, fmt.Errorf("invalid signature %q: expected <txid>:<index>:<hex>", s)
	}
	h, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return txbuilder.SignatureRequest{}, fmt.Errorf("invalid signature txid: %w", err)
	}
	idx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return txbuilder.SignatureRequest{}, fmt.Errorf("invalid signature index: %w", err)
	}
	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		return txbuilder.SignatureRequest{}, fmt.Errorf("invalid signature bytes: %w", err)
	}
	return txbuilder.SignatureRequest{PrevTxID: *h, PrevIndex: uint32(idx), Signature: sig}, nil
}

func (a *app) txCmd() *cobra.Command {
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect, fee and sign draft transactions",
		Long: `Inspect, fee and sign draft transactions.

Transactions are given as hex in either the plain or the extended format.
Signing needs the spent values and scripts, so P2PKH inputs without them
only sign in the extended format.`,
	}

	var rate float64
	feeCmd := &cobra.Command{
		Use:   "fee <txHex>",
		Short: "Estimate the fee of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, _, err := txbuilder.ParseAnyHex(args[0])
			if err != nil {
				return err
			}
			r := a.cfg.FeeSatsPerByte
			if cmd.Flags().Changed("rate") {
				r = rate
			}
			return printJSON(cmd, map[string]any{
				"size":        tx.Size(),
				"fee":         int64(tx.EstimateFee(r)),
				"safe_fee":    int64(tx.SafeEstimateFee(r)),
				"current_fee": int64(tx.CurrentFee()),
			})
		},
	}
	feeCmd.Flags().Float64Var(&rate, "rate", 0, "fee rate in satoshis per byte (defaults to the configured rate)")

	var (
		keys        []string
		sigs        []string
		confirmOnly bool
	)
	signCmd := &cobra.Command{
		Use:   "sign <txHex>",
		Short: "Sign a draft with private keys and external signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, extended, err := txbuilder.ParseAnyHex(args[0])
			if err != nil {
				return err
			}
			privs := make([]*btcec.PrivateKey, 0, len(keys))
			for _, k := range keys {
				priv, err := parsePrivateKey(k)
				if err != nil {
					return err
				}
				privs = append(privs, priv)
			}
			reqs := make([]txbuilder.SignatureRequest, 0, len(sigs))
			for _, s := range sigs {
				req, err := parseSignature(s)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}
			signed, err := tx.Sign(privs, reqs, confirmOnly)
			if err != nil {
				return err
			}
			h, err := encodeTx(tx, extended)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"signed": signed,
				"txid":   tx.TxHash().String(),
				"hex":    h,
			})
		},
	}
	signCmd.Flags().StringArrayVar(&keys, "key", nil, "private key (WIF or hex), repeatable")
	signCmd.Flags().StringArrayVar(&sigs, "sig", nil, "external signature <txid>:<index>:<hex>, repeatable")
	signCmd.Flags().BoolVar(&confirmOnly, "confirm", false, "only check that the draft carries these signatures")

	checkCmd := &cobra.Command{
		Use:   "check <txHex>",
		Short: "Verify the signatures already in a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, _, err := txbuilder.ParseAnyHex(args[0])
			if err != nil {
				return err
			}
			signed, err := tx.CheckSignatures()
			if err != nil {
				return err
			}
			complete, err := tx.IsFullySigned()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"signed":   signed,
				"complete": complete,
			})
		},
	}

	txCmd.AddCommand(feeCmd, signCmd, checkCmd)
	return txCmd
}
