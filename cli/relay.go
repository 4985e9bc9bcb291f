package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/BoldBitcoinWallet/bsvkit/relay"
	"github.com/spf13/cobra"
)

func (a *app) relayCmd() *cobra.Command {
	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "HTTP relay for co-signers",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.Printf("HTTP relay starting on %s\n", a.cfg.RelayAddr)
			return relay.New(a.cfg).ListenAndServe(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (defaults to the configured relay_addr)")
	a.v.BindPFlag("relay_addr", serveCmd.Flags().Lookup("addr"))

	relayCmd.AddCommand(serveCmd)
	return relayCmd
}
