// Package wire implements the CBOR-shaped serialization of the core's
// data shapes: Program/Bundle/Instruction and maxi-packet encode-decode,
// little-endian and self-describing via github.com/fxamacker/cbor/v2.
package wire

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/instr"
	"github.com/joeycumines/dauphin/register"
)

// Program is the ordered sequence of instructions plus metadata.
type Program struct {
	Name       string              `cbor:"name"`
	User       string              `cbor:"user,omitempty"`
	CTime      int64               `cbor:"ctime"` // milliseconds
	InstrCount uint32              `cbor:"instr_count"`
	InterCount uint32              `cbor:"inter_count"` // pause-block count
	Note       string              `cbor:"note,omitempty"`
	Instructions []wireInstruction `cbor:"instructions"`
}

// wireInstruction is the serializable shape of instr.Instruction: opcode
// plus a base-4 type_value plus the operand payloads.
type wireInstruction struct {
	Opcode    uint32         `cbor:"opcode"`
	TypeValue uint64         `cbor:"type_value"`
	Operands  []wireOperand  `cbor:"operands"`
}

type wireOperand struct {
	// Register holds the register index for Register/UpRegister operands.
	Register int `cbor:"register,omitempty"`
	// LiteralKind/the value fields below hold a Literal operand's payload;
	// LiteralKind is only meaningful for OperandLiteral-kind operands.
	LiteralKind  uint8   `cbor:"lkind,omitempty"`
	LiteralInt   int64   `cbor:"lint,omitempty"`
	LiteralFloat float64 `cbor:"lfloat,omitempty"`
	LiteralBool  bool    `cbor:"lbool,omitempty"`
	LiteralStr   string  `cbor:"lstr,omitempty"`
	LiteralBytes []byte  `cbor:"lbytes,omitempty"`
}

func toWireInstruction(in instr.Instruction) wireInstruction {
	ops := make([]wireOperand, len(in.Operands))
	for i, op := range in.Operands {
		wop := wireOperand{Register: int(op.Register)}
		if op.Kind == instr.OperandLiteral {
			lit := op.Literal
			wop.LiteralKind = uint8(lit.Kind)
			wop.LiteralInt = lit.Int
			wop.LiteralFloat = lit.Float
			wop.LiteralBool = lit.Bool
			wop.LiteralStr = lit.Str
			wop.LiteralBytes = lit.Bytes
		}
		ops[i] = wop
	}
	return wireInstruction{
		Opcode:    in.Opcode,
		TypeValue: instr.EncodeTypeValue(in.Operands),
		Operands:  ops,
	}
}

func fromWireInstruction(w wireInstruction) instr.Instruction {
	kinds := instr.DecodeTypeValue(w.TypeValue, len(w.Operands))
	ops := make([]instr.Operand, len(w.Operands))
	for i, wop := range w.Operands {
		kind := kinds[i]
		op := instr.Operand{Kind: kind}
		switch kind {
		case instr.OperandRegister, instr.OperandUpRegister:
			op.Register = register.Register(wop.Register)
		case instr.OperandLiteral:
			op.Literal = instr.Literal{
				Kind:  instr.LiteralKind(wop.LiteralKind),
				Int:   wop.LiteralInt,
				Float: wop.LiteralFloat,
				Bool:  wop.LiteralBool,
				Str:   wop.LiteralStr,
				Bytes: wop.LiteralBytes,
			}
		}
		ops[i] = op
	}
	return instr.Instruction{Opcode: w.Opcode, Operands: ops}
}

// EncodeProgram serializes a Program of instr.Instructions to CBOR bytes.
func EncodeProgram(name, user string, ctimeMS int64, note string, interCount uint32, instructions []instr.Instruction) ([]byte, error) {
	wireInstrs := make([]wireInstruction, len(instructions))
	for i, in := range instructions {
		wireInstrs[i] = toWireInstruction(in)
	}
	p := Program{
		Name:         name,
		User:         user,
		CTime:        ctimeMS,
		InstrCount:   uint32(len(instructions)),
		InterCount:   interCount,
		Note:         note,
		Instructions: wireInstrs,
	}
	b, err := cbor.Marshal(p)
	if err != nil {
		return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "wire", Number: 1}, err, "encode program %q", name)
	}
	return b, nil
}

// DecodeProgram parses a Program previously produced by EncodeProgram, and
// returns its instructions in instr.Instruction form ready for the VM.
func DecodeProgram(b []byte) (Program, []instr.Instruction, error) {
	var p Program
	if err := cbor.Unmarshal(b, &p); err != nil {
		return Program{}, nil, diag.Wrap(diag.Operational, diag.Code{Namespace: "wire", Number: 2}, err, "decode program")
	}
	out := make([]instr.Instruction, len(p.Instructions))
	for i, w := range p.Instructions {
		out[i] = fromWireInstruction(w)
	}
	return p, out, nil
}
