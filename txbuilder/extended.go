package txbuilder

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/BoldBitcoinWallet/bsvkit/script"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// extendedMarker follows the version in the extended format.
var extendedMarker = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xef}

const maxExtendedScriptSize = wire.MaxMessagePayload

var (
	ErrNotExtended    = errors.New("transaction is not in extended format")
	ErrMissingPrevOut = errors.New("input has no previous output script")
)

// ExtendedBytes serializes the draft in the extended format: every input
// additionally carries the spent satoshis and locking script, so that the
// transaction can be signed or verified without looking up its parents.
func (tx *Tx) ExtendedBytes() ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.Write(le.AppendUint32(nil, uint32(tx.Version)))
	buf.Write(extendedMarker)

	if err := wire.WriteVarInt(&buf, 0, uint64(len(tx.Inputs))); err != nil {
		return nil, err
	}
	for i, in := range tx.Inputs {
		spent := in.spentScript()
		if spent == nil {
			return nil, fmt.Errorf("%w: input %d", ErrMissingPrevOut, i)
		}
		buf.Write(in.PrevOut.Hash[:])
		buf.Write(le.AppendUint32(nil, in.PrevOut.Index))
		if err := wire.WriteVarBytes(&buf, 0, in.ScriptSig.Bytes()); err != nil {
			return nil, err
		}
		buf.Write(le.AppendUint32(nil, in.Sequence))
		buf.Write(le.AppendUint64(nil, uint64(in.SpentValue())))
		if err := wire.WriteVarBytes(&buf, 0, spent.Bytes()); err != nil {
			return nil, err
		}
	}

	if err := wire.WriteVarInt(&buf, 0, uint64(len(tx.Outputs))); err != nil {
		return nil, err
	}
	for _, out := range tx.Outputs {
		buf.Write(le.AppendUint64(nil, uint64(out.Value)))
		if err := wire.WriteVarBytes(&buf, 0, out.ScriptPub.Bytes()); err != nil {
			return nil, err
		}
	}
	buf.Write(le.AppendUint32(nil, tx.LockTime))
	return buf.Bytes(), nil
}

func (tx *Tx) ExtendedHex() (string, error) {
	b, err := tx.ExtendedBytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IsExtended reports whether b carries the extended format marker.
func IsExtended(b []byte) bool {
	return len(b) >= 10 && bytes.Equal(b[4:10], extendedMarker)
}

// ParseExtended reads an extended format transaction. Inputs come back with
// Value and ScriptPub set.
func ParseExtended(b []byte) (*Tx, error) {
	if !IsExtended(b) {
		return nil, ErrNotExtended
	}
	r := bytes.NewReader(b[10:])
	tx := &Tx{Version: int32(binary.LittleEndian.Uint32(b[:4]))}

	nIn, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read input count: %w", err)
	}
	if nIn > uint64(r.Len()) {
		return nil, fmt.Errorf("input count %d exceeds payload", nIn)
	}
	for i := uint64(0); i < nIn; i++ {
		in, err := readExtendedInput(r)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	nOut, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read output count: %w", err)
	}
	if nOut > uint64(r.Len()) {
		return nil, fmt.Errorf("output count %d exceeds payload", nOut)
	}
	for i := uint64(0); i < nOut; i++ {
		value, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		s, err := readScript(r, "pkScript")
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		s.Template = script.ClassifyPub(s)
		tx.Outputs = append(tx.Outputs, &Output{Value: btcutil.Amount(value), ScriptPub: s})
	}

	var lockTime [4]byte
	if _, err := io.ReadFull(r, lockTime[:]); err != nil {
		return nil, fmt.Errorf("failed to read lock time: %w", err)
	}
	tx.LockTime = binary.LittleEndian.Uint32(lockTime[:])
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after transaction", r.Len())
	}
	tx.TxHash()
	return tx, nil
}

// ParseAnyHex decodes a plain or extended hex serialization and reports
// whether it was extended.
func ParseAnyHex(h string) (*Tx, bool, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode hex: %w", err)
	}
	if IsExtended(b) {
		tx, err := ParseExtended(b)
		return tx, true, err
	}
	tx, err := FromBytes(b)
	return tx, false, err
}

func readExtendedInput(r *bytes.Reader) (*Input, error) {
	var prev [chainhash.HashSize + 4]byte
	if _, err := io.ReadFull(r, prev[:]); err != nil {
		return nil, fmt.Errorf("failed to read outpoint: %w", err)
	}
	hash, err := chainhash.NewHash(prev[:chainhash.HashSize])
	if err != nil {
		return nil, err
	}
	scriptSig, err := readScript(r, "sigScript")
	if err != nil {
		return nil, err
	}
	scriptSig.Template = script.ClassifySig(scriptSig)
	var seq [4]byte
	if _, err := io.ReadFull(r, seq[:]); err != nil {
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}
	value, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	scriptPub, err := readScript(r, "prevScript")
	if err != nil {
		return nil, err
	}
	scriptPub.Template = script.ClassifyPub(scriptPub)
	amount := btcutil.Amount(value)
	return &Input{
		PrevOut:   *wire.NewOutPoint(hash, binary.LittleEndian.Uint32(prev[chainhash.HashSize:])),
		ScriptSig: scriptSig,
		ScriptPub: scriptPub,
		Value:     &amount,
		Sequence:  binary.LittleEndian.Uint32(seq[:]),
	}, nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("failed to read value: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readScript(r io.Reader, field string) (*script.Script, error) {
	b, err := wire.ReadVarBytes(r, 0, maxExtendedScriptSize, field)
	if err != nil {
		return nil, err
	}
	return script.Parse(b)
}
