package script

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

// ParseASM builds a script from space separated ASM tokens. Tokens are opcode
// names (OP_DUP), the literals 0 and -1, or hex data to push.
func ParseASM(asm string) (*Script, error) {
	s := New()
	for _, tok := range strings.Fields(asm) {
		switch tok {
		case "0":
			s.Append(OpCode(txscript.OP_0))
			continue
		case "-1":
			s.Append(OpCode(txscript.OP_1NEGATE))
			continue
		}
		if opcode, ok := txscript.OpcodeByName[strings.ToUpper(tok)]; ok {
			if opcode > txscript.OP_0 && opcode <= txscript.OP_PUSHDATA4 {
				return nil, fmt.Errorf("push opcode %s needs data", tok)
			}
			s.Append(OpCode(opcode))
			continue
		}
		data, err := hex.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid asm token %q: %w", tok, err)
		}
		s.Append(PushOp(data))
	}
	return s, nil
}
