// Package script models a Bitcoin script as an owned, indexable sequence of
// operations. Scripts parsed from bytes keep the exact push encoding of every
// operation so that re-serializing them is byte-for-byte stable, which the
// sigma data hash depends on.
package script

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

var ErrMalformedPush = errors.New("malformed push operation")

// Op is a single script operation. Data is only meaningful for push opcodes.
type Op struct {
	Opcode byte
	Data   []byte
}

// PushOp returns the push operation for data using the smallest explicit data
// opcode. One byte payloads are never rewritten as OP_1..OP_16.
func PushOp(data []byte) Op {
	n := len(data)
	var opcode byte
	switch {
	case n == 0:
		return Op{Opcode: txscript.OP_0}
	case n <= txscript.OP_DATA_75:
		opcode = byte(n)
	case n <= 0xff:
		opcode = txscript.OP_PUSHDATA1
	case n <= 0xffff:
		opcode = txscript.OP_PUSHDATA2
	default:
		opcode = txscript.OP_PUSHDATA4
	}
	return Op{Opcode: opcode, Data: bytes.Clone(data)}
}

// OpCode returns a bare (non push) operation.
func OpCode(opcode byte) Op {
	return Op{Opcode: opcode}
}

// IsPush reports whether the operation pushes data, including OP_0.
func (o Op) IsPush() bool {
	return o.Opcode <= txscript.OP_PUSHDATA4
}

// IsEmpty reports whether the op pushes nothing. Unfilled signature slots are
// empty pushes.
func (o Op) IsEmpty() bool {
	return o.IsPush() && len(o.Data) == 0
}

// Equal compares opcode and data.
func (o Op) Equal(other Op) bool {
	return o.Opcode == other.Opcode && bytes.Equal(o.Data, other.Data)
}

func (o Op) clone() Op {
	if o.Data == nil {
		return Op{Opcode: o.Opcode}
	}
	return Op{Opcode: o.Opcode, Data: bytes.Clone(o.Data)}
}

func (o Op) appendTo(b []byte) []byte {
	b = append(b, o.Opcode)
	switch {
	case o.Opcode >= txscript.OP_DATA_1 && o.Opcode <= txscript.OP_DATA_75:
	case o.Opcode == txscript.OP_PUSHDATA1:
		b = append(b, byte(len(o.Data)))
	case o.Opcode == txscript.OP_PUSHDATA2:
		b = binary.LittleEndian.AppendUint16(b, uint16(len(o.Data)))
	case o.Opcode == txscript.OP_PUSHDATA4:
		b = binary.LittleEndian.AppendUint32(b, uint32(len(o.Data)))
	default:
		return b
	}
	return append(b, o.Data...)
}

// Script is an owned op sequence tagged with the template it was built from
// or classified as.
type Script struct {
	Ops      []Op
	Template Template
}

// New returns a script over copies of ops.
func New(ops ...Op) *Script {
	s := &Script{Ops: make([]Op, 0, len(ops))}
	for _, op := range ops {
		s.Ops = append(s.Ops, op.clone())
	}
	return s
}

// Parse tokenizes raw script bytes. The template is left Unknown; callers
// classify explicitly with ClassifySig or ClassifyPub.
func Parse(b []byte) (*Script, error) {
	s := &Script{Ops: []Op{}}
	tokenizer := txscript.MakeScriptTokenizer(0, b)
	for tokenizer.Next() {
		op := Op{Opcode: tokenizer.Opcode()}
		if data := tokenizer.Data(); op.IsPush() && op.Opcode != txscript.OP_0 {
			op.Data = bytes.Clone(data)
		}
		s.Ops = append(s.Ops, op)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPush, err)
	}
	return s, nil
}

// ParseHex parses a hex encoded script.
func ParseHex(h string) (*Script, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("failed to decode script hex: %w", err)
	}
	return Parse(b)
}

// Bytes serializes the script.
func (s *Script) Bytes() []byte {
	if s == nil {
		return nil
	}
	b := make([]byte, 0, s.size())
	for _, op := range s.Ops {
		b = op.appendTo(b)
	}
	return b
}

func (s *Script) size() int {
	n := 0
	for _, op := range s.Ops {
		n += 1 + len(op.Data)
		switch op.Opcode {
		case txscript.OP_PUSHDATA1:
			n++
		case txscript.OP_PUSHDATA2:
			n += 2
		case txscript.OP_PUSHDATA4:
			n += 4
		}
	}
	return n
}

// Hex returns the hex encoding of Bytes.
func (s *Script) Hex() string {
	return hex.EncodeToString(s.Bytes())
}

// Len is the number of operations.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Ops)
}

// Clone deep-copies the script including op data.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	c := New(s.Ops...)
	c.Template = s.Template
	return c
}

// Append adds ops at the end of the script.
func (s *Script) Append(ops ...Op) {
	for _, op := range ops {
		s.Ops = append(s.Ops, op.clone())
	}
}

// Replace swaps the ops in [i, j) for ops.
func (s *Script) Replace(i, j int, ops ...Op) error {
	if i < 0 || j < i || j > len(s.Ops) {
		return fmt.Errorf("replace range [%d, %d) out of bounds for %d ops", i, j, len(s.Ops))
	}
	out := make([]Op, 0, len(s.Ops)-(j-i)+len(ops))
	out = append(out, s.Ops[:i]...)
	for _, op := range ops {
		out = append(out, op.clone())
	}
	out = append(out, s.Ops[j:]...)
	s.Ops = out
	return nil
}

// Slice returns a new script holding copies of ops [i, j).
func (s *Script) Slice(i, j int) *Script {
	return New(s.Ops[i:j]...)
}

// Set overwrites op i.
func (s *Script) Set(i int, op Op) {
	s.Ops[i] = op.clone()
}

// IndexOfOpcode returns the first index of a bare opcode, or -1.
func (s *Script) IndexOfOpcode(opcode byte) int {
	for i, op := range s.Ops {
		if op.Opcode == opcode {
			return i
		}
	}
	return -1
}

// IndexOfPush returns the index of the first push of data at or after from, or -1.
func (s *Script) IndexOfPush(data []byte, from int) int {
	for i := from; i < len(s.Ops); i++ {
		if s.Ops[i].IsPush() && bytes.Equal(s.Ops[i].Data, data) {
			return i
		}
	}
	return -1
}

// Equal compares op sequences; templates are ignored.
func (s *Script) Equal(other *Script) bool {
	return bytes.Equal(s.Bytes(), other.Bytes())
}

// String renders the script as ASM.
func (s *Script) String() string {
	asm, _ := txscript.DisasmString(s.Bytes())
	return asm
}
