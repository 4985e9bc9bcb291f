// Package txbuilder holds mutable draft transactions and the template aware
// signing engine that fills their unlocking scripts.
//
// A Tx is owned by one caller at a time. Sign mutates the signature slots of
// the inputs in place; use Clone to hand a copy to another signer.
package txbuilder

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BoldBitcoinWallet/bsvkit/logs"
	"github.com/BoldBitcoinWallet/bsvkit/script"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var log = logs.Logger("txbuilder")

const DefaultSequence = wire.MaxTxInSequenceNum

var (
	// ErrMissingScriptPub aborts a signing pass: a multisig input cannot be
	// signed without the script it spends.
	ErrMissingScriptPub = errors.New("multisig input has no previous output script")
	ErrInputIndex       = errors.New("input index out of range")
	ErrNotP2PKH         = errors.New("input is not p2pkh shaped")
)

// Input is a draft input. Value, PrivKey and PrevTx are optional.
type Input struct {
	PrevOut   wire.OutPoint
	ScriptSig *script.Script
	ScriptPub *script.Script
	Value     *btcutil.Amount
	PrivKey   *btcec.PrivateKey
	PrevTx    *wire.MsgTx
	Sequence  uint32
}

// SpentValue resolves the value of the spent output: the explicit Value, else
// the output of the attached previous transaction, else zero.
func (in *Input) SpentValue() btcutil.Amount {
	if in.Value != nil {
		return *in.Value
	}
	if in.PrevTx != nil && int(in.PrevOut.Index) < len(in.PrevTx.TxOut) {
		return btcutil.Amount(in.PrevTx.TxOut[in.PrevOut.Index].Value)
	}
	return 0
}

// spentScript is ScriptPub, falling back to the attached previous transaction.
func (in *Input) spentScript() *script.Script {
	if in.ScriptPub != nil {
		return in.ScriptPub
	}
	if in.PrevTx != nil && int(in.PrevOut.Index) < len(in.PrevTx.TxOut) {
		s, err := script.Parse(in.PrevTx.TxOut[in.PrevOut.Index].PkScript)
		if err == nil {
			s.Template = script.ClassifyPub(s)
			return s
		}
	}
	return nil
}

// isMultisig reports whether the input unlocks a multisig output. A two op
// unlock only counts when it was built as one or its spent script says so.
func (in *Input) isMultisig() bool {
	if in.ScriptSig.Template.Kind == script.Multisig || script.ClassifySig(in.ScriptSig).Kind == script.Multisig {
		return true
	}
	if in.ScriptSig.Len() != 2 {
		return false
	}
	spent := in.spentScript()
	return spent != nil && script.ClassifyPub(spent).Kind == script.Multisig
}

func (in *Input) clone() *Input {
	c := *in
	c.ScriptSig = in.ScriptSig.Clone()
	c.ScriptPub = in.ScriptPub.Clone()
	if in.Value != nil {
		v := *in.Value
		c.Value = &v
	}
	return &c
}

// Output is a draft output. PubKey is informational only.
type Output struct {
	Value     btcutil.Amount
	ScriptPub *script.Script
	PubKey    *btcec.PublicKey
}

func (out *Output) clone() *Output {
	c := *out
	c.ScriptPub = out.ScriptPub.Clone()
	return &c
}

// SignatureRequest is an externally produced signature for the input
// spending PrevTxID:PrevIndex. Signature includes the sighash type byte.
type SignatureRequest struct {
	PrevTxID  chainhash.Hash
	PrevIndex uint32
	Signature []byte
}

func (r SignatureRequest) matches(op wire.OutPoint) bool {
	return r.PrevTxID == op.Hash && r.PrevIndex == op.Index
}

// Tx is a draft transaction.
type Tx struct {
	Version  int32
	Inputs   []*Input
	Outputs  []*Output
	LockTime uint32

	// HashTx caches the txid of the wire transaction the draft was read
	// from. It is cleared whenever the draft changes.
	HashTx *chainhash.Hash

	// Hasher computes signature hashes; nil means ForkIDHasher.
	Hasher SigHasher
}

func New() *Tx {
	return &Tx{Version: wire.TxVersion}
}

func (tx *Tx) touch() {
	tx.HashTx = nil
}

// AddInputP2PKH appends an unsigned P2PKH input. A nil prevScriptPub is
// derived from pubKey.
func (tx *Tx) AddInputP2PKH(pubKey *btcec.PublicKey, value btcutil.Amount, prevTxID chainhash.Hash, prevIndex uint32, prevScriptPub *script.Script, sequence uint32) *Input {
	if prevScriptPub == nil {
		prevScriptPub = script.P2PKHLock(btcutil.Hash160(pubKey.SerializeCompressed()))
	}
	in := &Input{
		PrevOut:   *wire.NewOutPoint(&prevTxID, prevIndex),
		ScriptSig: script.P2PKHUnlockPlaceholder(pubKey),
		ScriptPub: prevScriptPub,
		Value:     &value,
		Sequence:  sequence,
	}
	tx.Inputs = append(tx.Inputs, in)
	tx.touch()
	return in
}

// AddInputMultisig appends an unsigned M-of-N input. A nil prevScriptPub is
// built from required and pubKeys.
func (tx *Tx) AddInputMultisig(required int, pubKeys []*btcec.PublicKey, value btcutil.Amount, prevTxID chainhash.Hash, prevIndex uint32, prevScriptPub *script.Script, sequence uint32) (*Input, error) {
	if prevScriptPub == nil {
		s, err := script.MultisigLock(required, pubKeys)
		if err != nil {
			return nil, err
		}
		prevScriptPub = s
	}
	in := &Input{
		PrevOut:   *wire.NewOutPoint(&prevTxID, prevIndex),
		ScriptSig: script.MultisigUnlockPlaceholder(required),
		ScriptPub: prevScriptPub,
		Value:     &value,
		Sequence:  sequence,
	}
	tx.Inputs = append(tx.Inputs, in)
	tx.touch()
	return in, nil
}

// AddInputFromTx spends output prevIndex of prev with key attached to the
// input. Value and script are looked up from prev when signing.
func (tx *Tx) AddInputFromTx(prev *wire.MsgTx, prevIndex uint32, key *btcec.PrivateKey, sequence uint32) (*Input, error) {
	if int(prevIndex) >= len(prev.TxOut) {
		return nil, fmt.Errorf("previous transaction has %d outputs, no index %d", len(prev.TxOut), prevIndex)
	}
	pkScript, err := script.Parse(prev.TxOut[prevIndex].PkScript)
	if err != nil {
		return nil, fmt.Errorf("failed to parse previous output script: %w", err)
	}
	pkScript.Template = script.ClassifyPub(pkScript)

	var scriptSig *script.Script
	switch pkScript.Template.Kind {
	case script.P2PKH:
		scriptSig = script.P2PKHUnlockPlaceholder(key.PubKey())
	case script.Multisig:
		scriptSig = script.MultisigUnlockPlaceholder(pkScript.Template.Required)
	default:
		return nil, fmt.Errorf("unsupported previous output script %s", pkScript)
	}
	in := &Input{
		PrevOut:   *wire.NewOutPoint(txHash(prev), prevIndex),
		ScriptSig: scriptSig,
		ScriptPub: pkScript,
		PrivKey:   key,
		PrevTx:    prev,
		Sequence:  sequence,
	}
	tx.Inputs = append(tx.Inputs, in)
	tx.touch()
	return in, nil
}

// AddInput appends a wire input, classifying its signature script.
func (tx *Tx) AddInput(txIn *wire.TxIn) (*Input, error) {
	scriptSig, err := script.Parse(txIn.SignatureScript)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signature script: %w", err)
	}
	scriptSig.Template = script.ClassifySig(scriptSig)
	in := &Input{
		PrevOut:   txIn.PreviousOutPoint,
		ScriptSig: scriptSig,
		Sequence:  txIn.Sequence,
	}
	tx.Inputs = append(tx.Inputs, in)
	tx.touch()
	return in, nil
}

func (tx *Tx) AddOutputP2PKH(pubKey *btcec.PublicKey, value btcutil.Amount) *Output {
	out := &Output{
		Value:     value,
		ScriptPub: script.P2PKHLock(btcutil.Hash160(pubKey.SerializeCompressed())),
		PubKey:    pubKey,
	}
	return tx.addOutput(out)
}

func (tx *Tx) AddOutputMultisig(required int, pubKeys []*btcec.PublicKey, value btcutil.Amount) (*Output, error) {
	s, err := script.MultisigLock(required, pubKeys)
	if err != nil {
		return nil, err
	}
	return tx.addOutput(&Output{Value: value, ScriptPub: s}), nil
}

// AddOutputRaw appends an output paying to s, which the draft takes over.
func (tx *Tx) AddOutputRaw(s *script.Script, value btcutil.Amount) *Output {
	return tx.addOutput(&Output{Value: value, ScriptPub: s})
}

// AddOutputAddress pays value to a Base58Check encoded address on net.
func (tx *Tx) AddOutputAddress(address string, value btcutil.Amount, net *chaincfg.Params) (*Output, error) {
	addr, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create output script: %w", err)
	}
	s, err := script.Parse(pkScript)
	if err != nil {
		return nil, err
	}
	s.Template = script.ClassifyPub(s)
	return tx.addOutput(&Output{Value: value, ScriptPub: s}), nil
}

func (tx *Tx) addOutput(out *Output) *Output {
	tx.Outputs = append(tx.Outputs, out)
	tx.touch()
	return out
}

// CurrentFee is the sum of resolvable input values minus the output values.
func (tx *Tx) CurrentFee() btcutil.Amount {
	var fee btcutil.Amount
	for _, in := range tx.Inputs {
		fee += in.SpentValue()
	}
	for _, out := range tx.Outputs {
		fee -= out.Value
	}
	return fee
}

// Clone deep-copies the draft. Keys and attached previous transactions are
// shared; both are treated as read only.
func (tx *Tx) Clone() *Tx {
	c := &Tx{
		Version:  tx.Version,
		LockTime: tx.LockTime,
		Hasher:   tx.Hasher,
		Inputs:   make([]*Input, len(tx.Inputs)),
		Outputs:  make([]*Output, len(tx.Outputs)),
	}
	if tx.HashTx != nil {
		h := *tx.HashTx
		c.HashTx = &h
	}
	for i, in := range tx.Inputs {
		c.Inputs[i] = in.clone()
	}
	for i, out := range tx.Outputs {
		c.Outputs[i] = out.clone()
	}
	return c
}

// MsgTx converts the draft to a wire transaction.
func (tx *Tx) MsgTx() *wire.MsgTx {
	msg := &wire.MsgTx{
		Version:  tx.Version,
		TxIn:     make([]*wire.TxIn, 0, len(tx.Inputs)),
		TxOut:    make([]*wire.TxOut, 0, len(tx.Outputs)),
		LockTime: tx.LockTime,
	}
	for _, in := range tx.Inputs {
		msg.TxIn = append(msg.TxIn, &wire.TxIn{
			PreviousOutPoint: in.PrevOut,
			SignatureScript:  in.ScriptSig.Bytes(),
			Sequence:         in.Sequence,
		})
	}
	for _, out := range tx.Outputs {
		msg.TxOut = append(msg.TxOut, wire.NewTxOut(int64(out.Value), out.ScriptPub.Bytes()))
	}
	return msg
}

// Bytes serializes the draft in the wire format.
func (tx *Tx) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.MsgTx().SerializeNoWitness(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return buf.Bytes(), nil
}

func (tx *Tx) Hex() (string, error) {
	b, err := tx.Bytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// TxHash computes the txid of the current draft and caches it in HashTx.
func (tx *Tx) TxHash() chainhash.Hash {
	h := tx.MsgTx().TxHash()
	tx.HashTx = &h
	return h
}

// FromMsgTx builds a draft from a wire transaction. Signature scripts are
// classified by shape and output scripts by standard class.
func FromMsgTx(msg *wire.MsgTx) (*Tx, error) {
	tx := &Tx{Version: msg.Version, LockTime: msg.LockTime}
	for i, txIn := range msg.TxIn {
		if _, err := tx.AddInput(txIn); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	for i, txOut := range msg.TxOut {
		s, err := script.Parse(txOut.PkScript)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		s.Template = script.ClassifyPub(s)
		tx.Outputs = append(tx.Outputs, &Output{Value: btcutil.Amount(txOut.Value), ScriptPub: s})
	}
	tx.HashTx = txHash(msg)
	return tx, nil
}

// FromBytes parses a wire serialized transaction.
func FromBytes(b []byte) (*Tx, error) {
	var msg wire.MsgTx
	if err := msg.DeserializeNoWitness(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return FromMsgTx(&msg)
}

func FromHex(h string) (*Tx, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction hex: %w", err)
	}
	return FromBytes(b)
}

func txHash(msg *wire.MsgTx) *chainhash.Hash {
	h := msg.TxHash()
	return &h
}
