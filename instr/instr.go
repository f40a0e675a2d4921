// Package instr defines the wire-level instruction shape: opcodes,
// operand kinds, the base-4 type_value encoding, and the
// InstructionSetId/SetMapper machinery that turns many independently
// numbered instruction sets into one flat opcode space.
package instr

import (
	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/register"
)

// OperandKind is one of the three shapes an instruction operand can take,
// encoded in a base-4 type_value (1=Register, 2=UpRegister, 3=Literal).
type OperandKind uint8

const (
	OperandRegister   OperandKind = 1
	OperandUpRegister OperandKind = 2
	OperandLiteral    OperandKind = 3
)

// LiteralKind discriminates Literal's scalar variant.
type LiteralKind uint8

const (
	LiteralInt LiteralKind = iota
	LiteralFloat
	LiteralBool
	LiteralString
	LiteralBytes
)

// Literal is a compile-time constant operand value.
type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	Bytes []byte
}

// Operand is one decoded instruction argument.
type Operand struct {
	Kind     OperandKind
	Register register.Register // meaningful when Kind is Register or UpRegister
	Literal  Literal            // meaningful when Kind is Literal
}

// Instruction is a single decoded bytecode instruction: a flat opcode and
// its operand list.
type Instruction struct {
	Opcode   uint32
	Operands []Operand
}

// EncodeTypeValue packs each operand's Kind into a base-4 type_value, least
// significant digit first — the wire representation of an instruction's
// operand shape.
func EncodeTypeValue(operands []Operand) uint64 {
	var tv uint64
	for i, op := range operands {
		tv |= uint64(op.Kind) << uint(2*i)
	}
	return tv
}

// DecodeTypeValue unpacks a type_value into n operand kinds.
func DecodeTypeValue(tv uint64, n int) []OperandKind {
	out := make([]OperandKind, n)
	for i := range out {
		out[i] = OperandKind((tv >> uint(2*i)) & 0x3)
	}
	return out
}

// InstructionSetId names one versioned instruction set.
type InstructionSetId struct {
	Name    string
	Version uint64
}

// SetMapper assigns each registered InstructionSetId a base offset so that
// many independently-numbered instruction sets combine into one flat
// opcode space: flat = base(set) + local_opcode.
type SetMapper struct {
	bases   map[InstructionSetId]uint32
	widths  map[InstructionSetId]uint32
	nextBase uint32
}

// NewSetMapper returns an empty SetMapper.
func NewSetMapper() *SetMapper {
	return &SetMapper{
		bases:  make(map[InstructionSetId]uint32),
		widths: make(map[InstructionSetId]uint32),
	}
}

// Register reserves opcodeCount flat opcodes for id and returns the base
// offset assigned to it. Registering the same id twice is a Fatal error.
func (m *SetMapper) Register(id InstructionSetId, opcodeCount uint32) (uint32, error) {
	if _, exists := m.bases[id]; exists {
		return 0, diag.New(diag.Fatal, diag.Code{Namespace: "instr", Number: 1}, "instruction set %s v%d registered twice", id.Name, id.Version)
	}
	base := m.nextBase
	m.bases[id] = base
	m.widths[id] = opcodeCount
	m.nextBase += opcodeCount
	return base, nil
}

// Resolve maps (id, localOpcode) to its flat opcode.
func (m *SetMapper) Resolve(id InstructionSetId, localOpcode uint32) (uint32, error) {
	base, ok := m.bases[id]
	if !ok {
		return 0, diag.New(diag.NoSuch, diag.Code{Namespace: "instr", Number: 2}, "instruction set %s v%d not registered", id.Name, id.Version)
	}
	if localOpcode >= m.widths[id] {
		return 0, diag.New(diag.Fatal, diag.Code{Namespace: "instr", Number: 3}, "opcode %d out of range for instruction set %s v%d (width %d)", localOpcode, id.Name, id.Version, m.widths[id])
	}
	return base + localOpcode, nil
}
