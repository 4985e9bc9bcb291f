// Package ecies implements Electrum style ECIES ("BIE1") authenticated
// encryption between two secp256k1 key pairs.
//
// Alice sets her private key and Bob's public key, Bob sets his private key
// and Alice's public key; both derive the same IV, encryption key kE and MAC
// key kM from SHA-512 of the compressed ECDH shared point.
package ecies

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	eciesgo "github.com/ecies/go/v2"
)

const (
	Magic = "BIE1"

	pubKeySize   = 33
	tagSize      = 32
	shortTagSize = 4
)

var (
	ErrInvalidKeys     = errors.New("ecies: invalid keys")
	ErrInvalidMagic    = errors.New("ecies: invalid magic")
	ErrInvalidChecksum = errors.New("ecies: invalid checksum")
	ErrInvalidPayload  = errors.New("ecies: invalid payload")
	ErrInvalidPadding  = errors.New("ecies: invalid padding")
)

type Option func(*Cipher)

// WithNoKey omits the sender public key from payloads. The receiver must
// already know it.
func WithNoKey() Option {
	return func(c *Cipher) { c.NoKey = true }
}

// WithShortTag truncates the MAC tag from 32 to 4 bytes.
func WithShortTag() Option {
	return func(c *Cipher) { c.ShortTag = true }
}

// Cipher holds one side of an ECIES session. The derived keys are recomputed
// on every Encrypt and Decrypt and never leave the struct.
type Cipher struct {
	PrivateKey *eciesgo.PrivateKey
	PublicKey  *eciesgo.PublicKey
	NoKey      bool
	ShortTag   bool

	iv []byte
	kE []byte
	kM []byte
}

// New creates a cipher for the local private key and the counterpart's
// public key. Either may be nil: Encrypt generates an ephemeral private key
// and Decrypt reads the sender key from the payload.
func New(priv *eciesgo.PrivateKey, pub *eciesgo.PublicKey, opts ...Option) *Cipher {
	c := &Cipher{PrivateKey: priv, PublicKey: pub}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromBtcec is New for btcec keys.
func NewFromBtcec(priv *btcec.PrivateKey, pub *btcec.PublicKey, opts ...Option) (*Cipher, error) {
	c := New(nil, nil, opts...)
	if priv != nil {
		c.PrivateKey = eciesgo.NewPrivateKeyFromBytes(priv.Serialize())
	}
	if pub != nil {
		p, err := parsePublicKey(pub.SerializeCompressed())
		if err != nil {
			return nil, err
		}
		c.PublicKey = p
	}
	return c, nil
}

// parsePublicKey checks the point is on the curve before handing it to the
// ECDH implementation.
func parsePublicKey(b []byte) (*eciesgo.PublicKey, error) {
	if _, err := btcec.ParsePubKey(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeys, err)
	}
	pub, err := eciesgo.NewPublicKeyFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeys, err)
	}
	return pub, nil
}

func (c *Cipher) tagSize() int {
	if c.ShortTag {
		return shortTagSize
	}
	return tagSize
}

func (c *Cipher) updateSession() error {
	if c.PrivateKey == nil || c.PublicKey == nil {
		return ErrInvalidKeys
	}
	shared, err := c.PrivateKey.ECDH(c.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeys, err)
	}
	h := sha512.Sum512(shared)
	c.iv = bytes.Clone(h[0:16])
	c.kE = bytes.Clone(h[16:32])
	c.kM = bytes.Clone(h[32:64])
	return nil
}

func (c *Cipher) mac(data []byte) []byte {
	m := hmac.New(sha256.New, c.kM)
	m.Write(data)
	return m.Sum(nil)[:c.tagSize()]
}

// Encrypt returns "BIE1" ‖ sender pubkey ‖ AES-128-CBC ciphertext ‖ tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if c.PrivateKey == nil {
		priv, err := eciesgo.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
		}
		c.PrivateKey = priv
	}
	if err := c.updateSession(); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(c.kE)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(Magic)+pubKeySize+len(ciphertext)+c.tagSize())
	out = append(out, Magic...)
	if !c.NoKey {
		out = append(out, c.PrivateKey.PublicKey.Bytes(true)...)
	}
	out = append(out, ciphertext...)
	return append(out, c.mac(out)...), nil
}

// Decrypt verifies and opens a payload produced by Encrypt. A payload that
// carries the sender key replaces the configured counterpart key.
func (c *Cipher) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < len(Magic) {
		return nil, ErrInvalidPayload
	}
	if string(payload[:len(Magic)]) != Magic {
		return nil, ErrInvalidMagic
	}

	offset := len(Magic)
	if !c.NoKey {
		if len(payload) < offset+pubKeySize {
			return nil, ErrInvalidPayload
		}
		pub, err := parsePublicKey(payload[offset : offset+pubKeySize])
		if err != nil {
			return nil, err
		}
		c.PublicKey = pub
		offset += pubKeySize
	}

	tagLen := c.tagSize()
	if len(payload) < offset+tagLen {
		return nil, ErrInvalidPayload
	}
	if err := c.updateSession(); err != nil {
		return nil, err
	}

	body := payload[:len(payload)-tagLen]
	if !hmac.Equal(payload[len(payload)-tagLen:], c.mac(body)) {
		return nil, ErrInvalidChecksum
	}

	ciphertext := body[offset:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidPayload
	}
	block, err := aes.NewCipher(c.kE)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
