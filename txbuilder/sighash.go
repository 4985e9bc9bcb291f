package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	SigHashForkID    txscript.SigHashType = 0x40
	SigHashAllForkID                      = txscript.SigHashAll | SigHashForkID
)

// VerifyFlags select the signature hash algorithm.
type VerifyFlags uint32

const (
	// VerifyForkID enables the fork id digest for hash types that carry
	// SigHashForkID.
	VerifyForkID VerifyFlags = 1 << 16

	DefaultVerifyFlags = VerifyForkID
)

// SigHasher computes the digest an input signature commits to.
type SigHasher interface {
	SignatureHash(scriptPub []byte, tx *wire.MsgTx, idx int, hashType txscript.SigHashType, value int64, flags VerifyFlags) ([]byte, error)
}

// ForkIDHasher commits to the spent value using the BIP-143 digest layout
// when the fork id is enabled, and to the legacy digest otherwise.
type ForkIDHasher struct{}

func (ForkIDHasher) SignatureHash(scriptPub []byte, tx *wire.MsgTx, idx int, hashType txscript.SigHashType, value int64, flags VerifyFlags) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d", ErrInputIndex, idx)
	}
	if flags&VerifyForkID == 0 || hashType&SigHashForkID == 0 {
		return txscript.CalcSignatureHash(scriptPub, hashType, tx, idx)
	}
	// every input is hashed against the same canned output; only the
	// prevout, sequence and output midstates are used for v0 digests
	fetcher := txscript.NewCannedPrevOutputFetcher(scriptPub, value)
	hashCache := txscript.NewTxSigHashes(tx, fetcher)
	return txscript.CalcWitnessSigHash(scriptPub, hashCache, hashType, tx, idx, value)
}

func (tx *Tx) hasher() SigHasher {
	if tx.Hasher == nil {
		return ForkIDHasher{}
	}
	return tx.Hasher
}
