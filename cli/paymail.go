package cli

import (
	"fmt"

	"github.com/BoldBitcoinWallet/bsvkit/paymail"
	"github.com/spf13/cobra"
)

func (a *app) paymailCmd() *cobra.Command {
	paymailCmd := &cobra.Command{
		Use:   "paymail",
		Short: "Paymail handles and capabilities",
	}

	parseCmd := &cobra.Command{
		Use:   "parse <handle>",
		Short: "Split a paymail handle into alias and domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias, domain, ok := paymail.Parse(args[0])
			if !ok {
				return fmt.Errorf("invalid paymail %q", args[0])
			}
			return printJSON(cmd, map[string]string{"alias": alias, "domain": domain})
		},
	}

	capabilitiesCmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List known capabilities and their BRFC ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for c := paymail.PKI; c <= paymail.P2PPaymentDestination; c++ {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", c, c.BrfcID())
			}
			return nil
		},
	}

	paymailCmd.AddCommand(parseCmd, capabilitiesCmd)
	return paymailCmd
}
