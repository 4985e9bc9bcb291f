package script

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

// Kind is the closed set of script templates the signing engine understands.
type Kind uint8

const (
	Unknown Kind = iota
	P2PKH
	Multisig
)

func (k Kind) String() string {
	switch k {
	case P2PKH:
		return "p2pkh"
	case Multisig:
		return "multisig"
	default:
		return "unknown"
	}
}

// Template tags a script with its recognized shape. Required and Total are
// only set for Multisig; Total is zero on unlocking scripts.
type Template struct {
	Kind     Kind
	Required int
	Total    int
}

func (t Template) String() string {
	if t.Kind == Multisig {
		return fmt.Sprintf("multisig(%d/%d)", t.Required, t.Total)
	}
	return t.Kind.String()
}

// ClassifySig determines the template of an unlocking script from its shape.
// Two pushes whose second op is a valid public key is P2PKH. Any other pair is
// Unknown: a 1-of-n multisig unlock has the same shape and only the spent
// script can tell them apart. A leading OP_0 followed by two or more pushes is
// a multisig unlock with one slot per required signature.
func ClassifySig(s *Script) Template {
	if s.Len() == 2 && s.Ops[0].IsPush() && s.Ops[1].IsPush() {
		if _, err := btcec.ParsePubKey(s.Ops[1].Data); err == nil {
			return Template{Kind: P2PKH}
		}
		return Template{}
	}
	if s.Len() > 2 && s.Ops[0].Opcode == txscript.OP_0 {
		for _, op := range s.Ops[1:] {
			if !op.IsPush() {
				return Template{}
			}
		}
		return Template{Kind: Multisig, Required: s.Len() - 1}
	}
	return Template{}
}

// ClassifyPub determines the template of a locking script using the standard
// script classes.
func ClassifyPub(s *Script) Template {
	b := s.Bytes()
	switch txscript.GetScriptClass(b) {
	case txscript.PubKeyHashTy:
		return Template{Kind: P2PKH}
	case txscript.MultiSigTy:
		total, required, err := txscript.CalcMultiSigStats(b)
		if err != nil {
			return Template{}
		}
		return Template{Kind: Multisig, Required: required, Total: total}
	}
	return Template{}
}

// P2PKHLock builds OP_DUP OP_HASH160 <hash160> OP_EQUALVERIFY OP_CHECKSIG.
func P2PKHLock(hash160 []byte) *Script {
	s := New(
		OpCode(txscript.OP_DUP),
		OpCode(txscript.OP_HASH160),
		PushOp(hash160),
		OpCode(txscript.OP_EQUALVERIFY),
		OpCode(txscript.OP_CHECKSIG),
	)
	s.Template = Template{Kind: P2PKH}
	return s
}

// MultisigLock builds OP_m <pubkeys...> OP_n OP_CHECKMULTISIG.
func MultisigLock(required int, pubKeys []*btcec.PublicKey) (*Script, error) {
	if required < 1 || required > len(pubKeys) || len(pubKeys) > 16 {
		return nil, fmt.Errorf("invalid multisig %d of %d", required, len(pubKeys))
	}
	s := New(OpCode(smallInt(required)))
	for _, pub := range pubKeys {
		s.Append(PushOp(pub.SerializeCompressed()))
	}
	s.Append(OpCode(smallInt(len(pubKeys))), OpCode(txscript.OP_CHECKMULTISIG))
	s.Template = Template{Kind: Multisig, Required: required, Total: len(pubKeys)}
	return s, nil
}

// P2PKHUnlockPlaceholder is an unsigned P2PKH unlock: an empty signature slot
// followed by the public key.
func P2PKHUnlockPlaceholder(pubKey *btcec.PublicKey) *Script {
	s := New(OpCode(txscript.OP_0), PushOp(pubKey.SerializeCompressed()))
	s.Template = Template{Kind: P2PKH}
	return s
}

// MultisigUnlockPlaceholder is an unsigned multisig unlock: the OP_0 consumed
// by the CHECKMULTISIG off-by-one followed by one empty slot per signature.
func MultisigUnlockPlaceholder(required int) *Script {
	s := &Script{Ops: make([]Op, required+1)}
	s.Template = Template{Kind: Multisig, Required: required}
	return s
}

// MultisigKeys returns the public keys declared by a multisig locking script.
func (s *Script) MultisigKeys() ([]*btcec.PublicKey, error) {
	t := ClassifyPub(s)
	if t.Kind != Multisig {
		return nil, fmt.Errorf("not a multisig script: %s", t)
	}
	keys := make([]*btcec.PublicKey, 0, t.Total)
	for _, op := range s.Ops[1 : len(s.Ops)-2] {
		pub, err := btcec.ParsePubKey(op.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid multisig key: %w", err)
		}
		keys = append(keys, pub)
	}
	return keys, nil
}

func smallInt(n int) byte {
	return byte(txscript.OP_1 - 1 + n)
}
