// Package bsm implements "Bitcoin Signed Message" signing and verification:
// the message is framed with the magic prefix, double SHA-256 hashed and
// signed with a recoverable compact signature.
package bsm

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	mecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	MessageMagic = "Bitcoin Signed Message:\n"

	// CompactSignatureSize is the header byte plus r and s.
	CompactSignatureSize = 65
)

var (
	ErrNilKey           = errors.New("bsm: nil private key")
	ErrRecoverFailed    = errors.New("bsm: cannot recover public key from signature")
	ErrAddressMismatch  = errors.New("bsm: address does not match signature")
	ErrInvalidAddress   = errors.New("bsm: invalid address")
	ErrInvalidSignature = errors.New("bsm: invalid signature")
)

func writeVarInt(buf *bytes.Buffer, n uint64) {
	// bytes.Buffer writes never fail.
	_ = wire.WriteVarInt(buf, 0, n)
}

// MessageHash returns HASH256(varint(len(magic)) magic varint(len(msg)) msg).
func MessageHash(message []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(MessageMagic) + len(message) + 10)
	writeVarInt(&buf, uint64(len(MessageMagic)))
	buf.WriteString(MessageMagic)
	writeVarInt(&buf, uint64(len(message)))
	buf.Write(message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// Sign produces a 65 byte compact signature of message for a compressed key.
func Sign(priv *btcec.PrivateKey, message []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	return mecdsa.SignCompact(priv, MessageHash(message), true), nil
}

// SignBase64 is Sign with the signature base64 encoded.
func SignBase64(priv *btcec.PrivateKey, message []byte) (string, error) {
	sig, err := Sign(priv, message)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// RecoverCompact recovers the signing public key and whether the signer used
// the compressed serialization.
func RecoverCompact(message, signature []byte) (*btcec.PublicKey, bool, error) {
	if len(signature) != CompactSignatureSize {
		return nil, false, fmt.Errorf("%w: signature length %d", ErrRecoverFailed, len(signature))
	}
	pub, compressed, err := mecdsa.RecoverCompact(signature, MessageHash(message))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRecoverFailed, err)
	}
	return pub, compressed, nil
}

// Verify checks that signature over message was produced by the key behind
// address. The address network is taken from its own version byte.
func Verify(message, signature []byte, address string) error {
	pub, compressed, err := RecoverCompact(message, signature)
	if err != nil {
		return err
	}
	_, version, err := base58.CheckDecode(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	got := base58.CheckEncode(btcutil.Hash160(serializePubKey(pub, compressed)), version)
	if got != address {
		return fmt.Errorf("%w: expected %s got %s", ErrAddressMismatch, address, got)
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[1:33]); overflow {
		return ErrInvalidSignature
	}
	if overflow := s.SetByteSlice(signature[33:65]); overflow {
		return ErrInvalidSignature
	}
	if !mecdsa.NewSignature(&r, &s).Verify(MessageHash(message), pub) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyBase64 is Verify for a base64 encoded signature.
func VerifyBase64(message []byte, signature, address string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return Verify(message, sig, address)
}

// RecoverAddress recovers the P2PKH address of the signer on net.
func RecoverAddress(message, signature []byte, net *chaincfg.Params) (string, error) {
	pub, compressed, err := RecoverCompact(message, signature)
	if err != nil {
		return "", err
	}
	return Address(pub, compressed, net)
}

// Address encodes the P2PKH address of pub.
func Address(pub *btcec.PublicKey, compressed bool, net *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(serializePubKey(pub, compressed)), net)
	if err != nil {
		return "", fmt.Errorf("failed to create address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

func serializePubKey(pub *btcec.PublicKey, compressed bool) []byte {
	if compressed {
		return pub.SerializeCompressed()
	}
	return pub.SerializeUncompressed()
}
