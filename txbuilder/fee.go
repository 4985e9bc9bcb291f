package txbuilder

import (
	"math"

	"github.com/BoldBitcoinWallet/bsvkit/config"
	"github.com/btcsuite/btcd/btcutil"
)

// Size is the length of the serialized draft in bytes.
func (tx *Tx) Size() int {
	return tx.MsgTx().SerializeSizeStripped()
}

// EstimateFee is the fast estimate max(1, rate*size), truncated.
func (tx *Tx) EstimateFee(satsPerByte float64) btcutil.Amount {
	fee := btcutil.Amount(satsPerByte * float64(tx.Size()))
	if fee < 1 {
		return 1
	}
	return fee
}

// SafeEstimateFee rounds rate*size up so the rate is never undershot.
func (tx *Tx) SafeEstimateFee(satsPerByte float64) btcutil.Amount {
	return btcutil.Amount(math.Ceil(satsPerByte * float64(tx.Size())))
}

// DefaultFee is the fast estimate at the configured rate.
func (tx *Tx) DefaultFee(cfg *config.Config) btcutil.Amount {
	rate := config.DefaultFeeSatsPerByte
	if cfg != nil && cfg.FeeSatsPerByte > 0 {
		rate = cfg.FeeSatsPerByte
	}
	return tx.EstimateFee(rate)
}
