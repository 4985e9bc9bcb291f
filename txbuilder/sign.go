package txbuilder

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/BoldBitcoinWallet/bsvkit/logs"
	"github.com/BoldBitcoinWallet/bsvkit/script"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	mecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// signer is one signing pass over a draft. The signature hashes are taken
// from the wire snapshot made when the pass starts; unlocking scripts are
// not part of the fork id digest.
type signer struct {
	tx      *Tx
	msg     *wire.MsgTx
	keys    []*btcec.PrivateKey
	sigs    []SignatureRequest
	confirm bool
}

// Sign fills every unsigned slot it can using keys, attached input keys and
// sigs. With confirmOnly set nothing is mutated: existing signatures are
// compared against the ones keys and sigs would produce, or verified against
// the spent script when neither applies.
//
// The boolean reports whether every slot holds (or matches) a signature. The
// error is only set for structural failures, such as a multisig input with
// no script to sign against, and aborts the pass.
func (tx *Tx) Sign(keys []*btcec.PrivateKey, sigs []SignatureRequest, confirmOnly bool) (bool, error) {
	s := &signer{tx: tx, msg: tx.MsgTx(), keys: keys, sigs: sigs, confirm: confirmOnly}
	ok := true
	for i, in := range tx.Inputs {
		if in.ScriptSig.Len() < 2 {
			continue
		}
		var (
			signed bool
			err    error
		)
		switch {
		case in.isMultisig():
			signed, err = s.multisig(i, in)
		case in.ScriptSig.Len() == 2:
			signed, err = s.p2pkh(i, in)
		default:
			log.Debugf("input %d: unsupported unlocking script %s", i, in.ScriptSig.Template)
			continue
		}
		if err != nil {
			return false, err
		}
		if !signed {
			logs.Logf(log, "input %d: not fully signed", i)
		}
		ok = ok && signed
	}
	if !confirmOnly {
		tx.touch()
	}
	return ok, nil
}

// CheckSignatures verifies the existing signatures without keys.
func (tx *Tx) CheckSignatures(sigs ...SignatureRequest) (bool, error) {
	return tx.Sign(nil, sigs, true)
}

// AddSignature installs sig into the P2PKH shaped input i without checking
// it. A missing spent script is derived from the input's public key.
func (tx *Tx) AddSignature(i int, sig []byte) error {
	if i < 0 || i >= len(tx.Inputs) {
		return fmt.Errorf("%w: %d", ErrInputIndex, i)
	}
	in := tx.Inputs[i]
	if in.ScriptSig.Len() != 2 {
		return fmt.Errorf("%w: input %d", ErrNotP2PKH, i)
	}
	in.ScriptSig.Set(0, script.PushOp(sig))
	if in.ScriptPub == nil {
		in.ScriptPub = script.P2PKHLock(btcutil.Hash160(in.ScriptSig.Ops[1].Data))
	}
	tx.touch()
	return nil
}

// IsFullySigned reports whether every signature slot of every input is
// filled.
func (tx *Tx) IsFullySigned() (bool, error) {
	for i, in := range tx.Inputs {
		if in.ScriptSig.Len() < 2 {
			return false, nil
		}
		switch {
		case in.isMultisig():
			if in.spentScript() == nil {
				return false, fmt.Errorf("%w: input %d", ErrMissingScriptPub, i)
			}
			for _, op := range in.ScriptSig.Ops[1:] {
				if op.IsEmpty() {
					return false, nil
				}
			}
		case in.ScriptSig.Len() == 2:
			if in.ScriptSig.Ops[0].IsEmpty() {
				return false, nil
			}
		}
	}
	return true, nil
}

func (s *signer) p2pkh(i int, in *Input) (bool, error) {
	slot := in.ScriptSig.Ops[0]
	if !slot.IsEmpty() && !s.confirm {
		return true, nil
	}
	if req, found := s.request(in.PrevOut, 0); found {
		return s.place(in, 0, req.Signature), nil
	}

	pubBytes := in.ScriptSig.Ops[1].Data
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		log.Debugf("input %d: invalid public key: %v", i, err)
		return false, nil
	}
	spent := in.spentScript()
	if spent == nil {
		spent = script.P2PKHLock(btcutil.Hash160(pubBytes))
	}

	priv := s.resolveKey(in, pub)
	if priv == nil {
		if slot.IsEmpty() {
			return false, nil
		}
		return s.verify(i, in, spent, slot.Data, pub), nil
	}
	sig, err := s.signInput(i, in, spent, priv)
	if err != nil {
		return false, err
	}
	return s.place(in, 0, sig), nil
}

func (s *signer) multisig(i int, in *Input) (bool, error) {
	spent := in.spentScript()
	if spent == nil {
		return false, fmt.Errorf("%w: input %d", ErrMissingScriptPub, i)
	}
	pubKeys, err := spent.MultisigKeys()
	if err != nil {
		log.Debugf("input %d: %v", i, err)
		return false, nil
	}
	slots := in.ScriptSig.Len() - 1
	if s.confirm {
		return s.confirmMultisig(i, in, spent, pubKeys)
	}

	next := nextEmpty(in.ScriptSig, 1)
	for n := 0; next <= slots; n++ {
		req, found := s.request(in.PrevOut, n)
		if !found {
			break
		}
		if hasSignature(in.ScriptSig, req.Signature) {
			continue
		}
		s.place(in, next, req.Signature)
		next = nextEmpty(in.ScriptSig, next)
	}

	remaining := emptySlots(in.ScriptSig)
	for _, mk := range s.matchKeys(in, pubKeys) {
		if remaining == 0 || next > slots {
			break
		}
		sig, err := s.signInput(i, in, spent, mk.key)
		if err != nil {
			return false, err
		}
		if hasSignature(in.ScriptSig, sig) {
			continue
		}
		s.place(in, next, sig)
		next = nextEmpty(in.ScriptSig, next)
		remaining--
	}
	return emptySlots(in.ScriptSig) == 0, nil
}

// confirmMultisig compares slots from index 1 onward against the supplied
// signatures, then against signatures made with the matching keys. With
// nothing supplied the slots are verified against the declared keys in
// CHECKMULTISIG order.
func (s *signer) confirmMultisig(i int, in *Input, spent *script.Script, pubKeys []*btcec.PublicKey) (bool, error) {
	slots := in.ScriptSig.Len() - 1
	if emptySlots(in.ScriptSig) > 0 {
		return false, nil
	}
	ok := true
	pos := 1
	for n := 0; pos <= slots; n++ {
		req, found := s.request(in.PrevOut, n)
		if !found {
			break
		}
		ok = s.place(in, pos, req.Signature) && ok
		pos++
	}
	for _, mk := range s.matchKeys(in, pubKeys) {
		if pos > slots {
			break
		}
		sig, err := s.signInput(i, in, spent, mk.key)
		if err != nil {
			return false, err
		}
		ok = s.place(in, pos, sig) && ok
		pos++
	}
	if pos > 1 {
		return ok, nil
	}

	k := 0
	for _, op := range in.ScriptSig.Ops[1:] {
		for k < len(pubKeys) && !s.verify(i, in, spent, op.Data, pubKeys[k]) {
			k++
		}
		if k == len(pubKeys) {
			return false, nil
		}
		k++
	}
	return true, nil
}

// place installs sig at slot, or in confirm mode compares it with what the
// slot already holds.
func (s *signer) place(in *Input, slot int, sig []byte) bool {
	if s.confirm {
		return bytes.Equal(in.ScriptSig.Ops[slot].Data, sig)
	}
	in.ScriptSig.Set(slot, script.PushOp(sig))
	return true
}

// request returns the n-th supplied signature for op.
func (s *signer) request(op wire.OutPoint, n int) (SignatureRequest, bool) {
	for _, r := range s.sigs {
		if !r.matches(op) {
			continue
		}
		if n == 0 {
			return r, true
		}
		n--
	}
	return SignatureRequest{}, false
}

func (s *signer) resolveKey(in *Input, pub *btcec.PublicKey) *btcec.PrivateKey {
	if in.PrivKey != nil && in.PrivKey.PubKey().IsEqual(pub) {
		return in.PrivKey
	}
	for _, k := range s.keys {
		if k != nil && k.PubKey().IsEqual(pub) {
			return k
		}
	}
	return nil
}

type matchedKey struct {
	index int
	key   *btcec.PrivateKey
}

// matchKeys returns the supplied keys that belong to the multisig key set,
// ordered by their position in it.
func (s *signer) matchKeys(in *Input, pubKeys []*btcec.PublicKey) []matchedKey {
	candidates := s.keys
	if in.PrivKey != nil {
		candidates = append([]*btcec.PrivateKey{in.PrivKey}, s.keys...)
	}
	seen := make(map[int]bool)
	var matched []matchedKey
	for _, k := range candidates {
		if k == nil {
			continue
		}
		pub := k.PubKey()
		for idx, p := range pubKeys {
			if p.IsEqual(pub) && !seen[idx] {
				seen[idx] = true
				matched = append(matched, matchedKey{index: idx, key: k})
				break
			}
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].index < matched[b].index })
	return matched
}

func (s *signer) sigHash(i int, in *Input, spent *script.Script) ([]byte, error) {
	hash, err := s.tx.hasher().SignatureHash(spent.Bytes(), s.msg, i, SigHashAllForkID, int64(in.SpentValue()), DefaultVerifyFlags)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sighash for input %d: %w", i, err)
	}
	return hash, nil
}

// signInput returns the DER signature of input i followed by the hash type.
func (s *signer) signInput(i int, in *Input, spent *script.Script, priv *btcec.PrivateKey) ([]byte, error) {
	hash, err := s.sigHash(i, in, spent)
	if err != nil {
		return nil, err
	}
	sig := mecdsa.Sign(priv, hash).Serialize()
	return append(sig, byte(SigHashAllForkID)), nil
}

// verify checks a slot signature (with hash type suffix) against pub.
func (s *signer) verify(i int, in *Input, spent *script.Script, sigWithType []byte, pub *btcec.PublicKey) bool {
	if len(sigWithType) < 2 || txscript.SigHashType(sigWithType[len(sigWithType)-1]) != SigHashAllForkID {
		return false
	}
	sig, err := mecdsa.ParseDERSignature(sigWithType[:len(sigWithType)-1])
	if err != nil {
		return false
	}
	hash, err := s.sigHash(i, in, spent)
	if err != nil {
		log.Debugf("input %d: %v", i, err)
		return false
	}
	return sig.Verify(hash, pub)
}

func nextEmpty(s *script.Script, from int) int {
	for i := from; i < s.Len(); i++ {
		if s.Ops[i].IsEmpty() {
			return i
		}
	}
	return s.Len()
}

func emptySlots(s *script.Script) int {
	n := 0
	for _, op := range s.Ops[1:] {
		if op.IsEmpty() {
			n++
		}
	}
	return n
}

func hasSignature(s *script.Script, sig []byte) bool {
	for _, op := range s.Ops[1:] {
		if !op.IsEmpty() && bytes.Equal(op.Data, sig) {
			return true
		}
	}
	return false
}
