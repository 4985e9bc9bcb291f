// Package sigma signs transaction outputs with the Sigma protocol: one or
// more address attributed BSM signatures embedded in an output script, each
// covering a reference input's outpoint and the script content before it.
//
// An instance block is a separator (OP_RETURN, or "|" once the script has
// one) followed by five pushes:
//
//	"SIGMA" "BSM" <address> <compact signature> <vin as decimal string>
package sigma

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/BoldBitcoinWallet/bsvkit/bsm"
	"github.com/BoldBitcoinWallet/bsvkit/logs"
	"github.com/BoldBitcoinWallet/bsvkit/script"
	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

var log = logs.Logger("sigma")

const (
	Tag          = "SIGMA"
	AlgorithmBSM = "BSM"
	Separator    = "|"

	// UseTargetVout makes the input at the target output's index the
	// reference input.
	UseTargetVout = -1

	blockSize = 5
)

var (
	ErrNoTransaction        = errors.New("sigma: no transaction")
	ErrNoSignature          = errors.New("sigma: no signature")
	ErrIncompleteState      = errors.New("sigma: input hash and data hash must be set")
	ErrTargetVout           = errors.New("sigma: target output out of range")
	ErrUnsupportedAlgorithm = errors.New("sigma: unsupported algorithm")
	ErrInstanceRange        = errors.New("sigma: instance out of range")
)

var (
	tagBytes = []byte(Tag)

	// dummyInputHash stands in for the input hash while the transaction has
	// no input at the reference index.
	dummyInputHash = chainhash.HashB(make([]byte, chainhash.HashSize))
)

// Sig is one signature instance.
type Sig struct {
	Address   string
	Algorithm string
	// Signature is the base64 compact signature.
	Signature  string
	Vin        int
	TargetVout int

	// Script is the five op instance block. SignedTx is only set on the
	// result of Sign.
	Script   *script.Script
	SignedTx *txbuilder.Tx
}

type Option func(*Sigma)

// WithNetParams selects the network signer addresses are encoded for.
func WithNetParams(net *chaincfg.Params) Option {
	return func(s *Sigma) { s.net = net }
}

// Sigma is a signing context for one instance of one output.
type Sigma struct {
	tx         *txbuilder.Tx
	targetVout int
	instance   int
	refVin     int
	net        *chaincfg.Params

	sig       *Sig
	sigParsed bool
}

// New creates a context for instance sigmaInstance of output targetVout of
// tx, referencing input refVin (or UseTargetVout).
func New(tx *txbuilder.Tx, targetVout, sigmaInstance, refVin int, opts ...Option) *Sigma {
	s := &Sigma{
		tx:         tx,
		targetVout: targetVout,
		instance:   sigmaInstance,
		refVin:     refVin,
		net:        &chaincfg.MainNetParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transaction is the working transaction. After Sign it is the signed copy.
func (s *Sigma) Transaction() *txbuilder.Tx {
	return s.tx
}

func (s *Sigma) SetTargetVout(targetVout int) {
	s.targetVout = targetVout
	s.invalidate()
}

func (s *Sigma) SetSigmaInstance(sigmaInstance int) {
	s.instance = sigmaInstance
	s.invalidate()
}

func (s *Sigma) invalidate() {
	s.sig = nil
	s.sigParsed = false
}

// adopt makes tx the working transaction.
func (s *Sigma) adopt(tx *txbuilder.Tx) {
	s.tx = tx
	s.invalidate()
}

func (s *Sigma) vin() int {
	if s.refVin == UseTargetVout {
		return s.targetVout
	}
	return s.refVin
}

func (s *Sigma) targetScript() (*script.Script, error) {
	if s.tx == nil {
		return nil, ErrNoTransaction
	}
	if s.targetVout < 0 || s.targetVout >= len(s.tx.Outputs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrTargetVout, s.targetVout, len(s.tx.Outputs))
	}
	out := s.tx.Outputs[s.targetVout]
	if out.ScriptPub == nil {
		return script.New(), nil
	}
	return out.ScriptPub, nil
}

// InputHash is SHA-256 of the reference input's outpoint: the previous txid
// in display byte order followed by the little endian output index.
func (s *Sigma) InputHash() ([]byte, error) {
	if s.tx == nil {
		return nil, ErrNoTransaction
	}
	vin := s.vin()
	if vin < 0 || vin >= len(s.tx.Inputs) {
		return bytes.Clone(dummyInputHash), nil
	}
	prev := s.tx.Inputs[vin].PrevOut
	var b [chainhash.HashSize + 4]byte
	for i, c := range prev.Hash {
		b[chainhash.HashSize-1-i] = c
	}
	b[32], b[33], b[34], b[35] = byte(prev.Index), byte(prev.Index>>8), byte(prev.Index>>16), byte(prev.Index>>24)
	return chainhash.HashB(b[:]), nil
}

// DataHash is SHA-256 of the target script up to the separator before this
// instance's tag, or of the whole script when the instance does not exist.
func (s *Sigma) DataHash() ([]byte, error) {
	sc, err := s.targetScript()
	if err != nil {
		return nil, err
	}
	end := sc.Len()
	if pos := tagPosition(sc, s.instance); pos >= 0 {
		end = max(pos-1, 0)
	}
	return chainhash.HashB(sc.Slice(0, end).Bytes()), nil
}

// MessageHash is SHA-256(input hash ‖ data hash), the message signed with BSM.
func (s *Sigma) MessageHash() ([]byte, error) {
	inputHash, err := s.InputHash()
	if err != nil {
		return nil, err
	}
	dataHash, err := s.DataHash()
	if err != nil {
		return nil, err
	}
	if isZero(inputHash) || isZero(dataHash) {
		return nil, ErrIncompleteState
	}
	return chainhash.HashB(append(bytes.Clone(inputHash), dataHash...)), nil
}

// Sign signs the configured instance with priv. An existing block at the
// instance is replaced in place, otherwise a separator and a new block are
// appended. Only the next free instance can be appended, so instance may not
// exceed SigInstanceCount. The signed transaction is a copy; the original is
// left untouched and the context switches to the copy.
func (s *Sigma) Sign(priv *btcec.PrivateKey) (*Sig, error) {
	if priv == nil {
		return nil, bsm.ErrNilKey
	}
	if _, err := s.targetScript(); err != nil {
		return nil, err
	}
	if count := s.SigInstanceCount(); s.instance < 0 || s.instance > count {
		return nil, fmt.Errorf("%w: %d with %d present", ErrInstanceRange, s.instance, count)
	}
	hash, err := s.MessageHash()
	if err != nil {
		return nil, err
	}
	signature, err := bsm.Sign(priv, hash)
	if err != nil {
		return nil, err
	}
	address, err := bsm.Address(priv.PubKey(), true, s.net)
	if err != nil {
		return nil, err
	}

	vin := s.vin()
	block := script.New(
		script.PushOp(tagBytes),
		script.PushOp([]byte(AlgorithmBSM)),
		script.PushOp([]byte(address)),
		script.PushOp(signature),
		script.PushOp([]byte(strconv.Itoa(vin))),
	)

	signed := s.tx.Clone()
	out := signed.Outputs[s.targetVout]
	if out.ScriptPub == nil {
		out.ScriptPub = script.New()
	}
	if pos := tagPosition(out.ScriptPub, s.instance); pos >= 0 && pos+blockSize <= out.ScriptPub.Len() {
		if err := out.ScriptPub.Replace(pos, pos+blockSize, block.Ops...); err != nil {
			return nil, err
		}
		log.Debugf("replaced instance %d of output %d", s.instance, s.targetVout)
	} else {
		out.ScriptPub.Append(separatorFor(out.ScriptPub))
		out.ScriptPub.Append(block.Ops...)
		log.Debugf("appended instance to output %d", s.targetVout)
	}
	signed.HashTx = nil
	s.adopt(signed)

	sig := &Sig{
		Address:    address,
		Algorithm:  AlgorithmBSM,
		Signature:  base64.StdEncoding.EncodeToString(signature),
		Vin:        vin,
		TargetVout: s.targetVout,
		Script:     block,
		SignedTx:   signed,
	}
	s.sig, s.sigParsed = sig, true
	return sig, nil
}

// Verify recomputes the message hash and checks the instance signature
// against its embedded address and, when set, expectedAddress. A signature
// that recovers to another address is reported as false; missing state and
// unrecoverable signatures are errors.
func (s *Sigma) Verify(expectedAddress string) (bool, error) {
	if s.tx == nil {
		return false, ErrNoTransaction
	}
	sig := s.Sig()
	if sig == nil {
		return false, ErrNoSignature
	}
	if sig.Algorithm != AlgorithmBSM {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, sig.Algorithm)
	}
	if expectedAddress != "" && expectedAddress != sig.Address {
		return false, nil
	}
	hash, err := s.MessageHash()
	if err != nil {
		return false, err
	}
	err = bsm.VerifyBase64(hash, sig.Signature, sig.Address)
	switch {
	case errors.Is(err, bsm.ErrAddressMismatch):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Sig returns the configured instance parsed from the target script, or nil.
// The parse is cached until the instance, the target or the transaction
// changes.
func (s *Sigma) Sig() *Sig {
	if s.sigParsed {
		return s.sig
	}
	instances := s.Instances()
	s.sig = nil
	if s.instance >= 0 && s.instance < len(instances) {
		s.sig = instances[s.instance]
	}
	s.sigParsed = true
	return s.sig
}

// Instances parses every instance block of the target script in order.
func (s *Sigma) Instances() []*Sig {
	sc, err := s.targetScript()
	if err != nil {
		return nil
	}
	var sigs []*Sig
	for i := 0; i < sc.Len(); i++ {
		if !isTag(sc.Ops[i]) {
			continue
		}
		if i+blockSize > sc.Len() {
			log.Debugf("truncated instance at op %d", i)
			break
		}
		fields := sc.Ops[i+1 : i+blockSize]
		vin, err := strconv.Atoi(string(fields[3].Data))
		if err != nil {
			vin = -1
		}
		sigs = append(sigs, &Sig{
			Algorithm:  string(fields[0].Data),
			Address:    string(fields[1].Data),
			Signature:  base64.StdEncoding.EncodeToString(fields[2].Data),
			Vin:        vin,
			TargetVout: s.targetVout,
			Script:     sc.Slice(i, i+blockSize),
		})
		i += blockSize - 1
	}
	return sigs
}

// SigInstanceCount is the number of protocol tags in the target script.
func (s *Sigma) SigInstanceCount() int {
	sc, err := s.targetScript()
	if err != nil {
		return 0
	}
	n := 0
	for _, op := range sc.Ops {
		if isTag(op) {
			n++
		}
	}
	return n
}

// SigInstancePosition is the op index of the first protocol tag, or -1.
func (s *Sigma) SigInstancePosition() int {
	sc, err := s.targetScript()
	if err != nil {
		return -1
	}
	return sc.IndexOfPush(tagBytes, 0)
}

func isTag(op script.Op) bool {
	return op.IsPush() && bytes.Equal(op.Data, tagBytes)
}

// tagPosition returns the op index of the n-th tag, or -1.
func tagPosition(sc *script.Script, n int) int {
	if n < 0 {
		return -1
	}
	for i := 0; i < sc.Len(); i++ {
		if !isTag(sc.Ops[i]) {
			continue
		}
		if n == 0 {
			return i
		}
		n--
		i += blockSize - 1
	}
	return -1
}

func separatorFor(sc *script.Script) script.Op {
	if sc.IndexOfOpcode(txscript.OP_RETURN) < 0 {
		return script.OpCode(txscript.OP_RETURN)
	}
	return script.PushOp([]byte(Separator))
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
