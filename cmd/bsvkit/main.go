package main

import (
	"os"

	"github.com/BoldBitcoinWallet/bsvkit/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
