// Package vm implements the stack-frame bytecode interpreter:
// InterpretInstance drives a linked Program against an InterpContext one
// voluntary-pause-boundary at a time via a single More method, dispatching
// each opcode through a command.Suite.
package vm

import (
	"context"

	"github.com/joeycumines/dauphin/command"
	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/instr"
	"github.com/joeycumines/dauphin/register"
	"github.com/joeycumines/dauphin/task"
)

// resolveLiteral builds an ephemeral *register.Value view of a Literal
// operand, so command code can treat every operand kind uniformly as a
// *register.Value regardless of whether it came from a register or a
// compile-time constant.
func resolveLiteral(lit instr.Literal) *register.Value {
	switch lit.Kind {
	case instr.LiteralInt:
		return &register.Value{Kind: register.KindIndexes, Indexes: []uint64{uint64(lit.Int)}}
	case instr.LiteralFloat:
		return &register.Value{Kind: register.KindNumbers, Numbers: []float64{lit.Float}}
	case instr.LiteralBool:
		return &register.Value{Kind: register.KindBooleans, Booleans: []bool{lit.Bool}}
	case instr.LiteralString:
		return &register.Value{Kind: register.KindStrings, Strings: []string{lit.Str}}
	case instr.LiteralBytes:
		return &register.Value{Kind: register.KindBytes, Bytes: [][]byte{lit.Bytes}}
	default:
		return register.Empty()
	}
}

// Resolve returns the *register.Value an operand denotes against ictx:
// a register read for Register, a parent-frame register read for
// UpRegister (one stack frame outwards), or a literal's
// ephemeral value.
func Resolve(ictx *register.Context, op instr.Operand) (*register.Value, error) {
	switch op.Kind {
	case instr.OperandRegister:
		return ictx.Registers.GetShared(op.Register)
	case instr.OperandUpRegister:
		if ictx.Parent == nil {
			return nil, diag.New(diag.Fatal, diag.Code{Namespace: "vm", Number: 1}, "up-register operand with no parent frame")
		}
		return ictx.Parent.GetShared(op.Register)
	case instr.OperandLiteral:
		return resolveLiteral(op.Literal), nil
	default:
		return nil, diag.New(diag.Fatal, diag.Code{Namespace: "vm", Number: 2}, "unknown operand kind %d", op.Kind)
	}
}

// Program is the minimal view of a linked program InterpretInstance needs:
// just its ordered instructions. wire.Program (plus its metadata) is
// converted into this shape by the loader once a bundle is installed.
type Program struct {
	Instructions []instr.Instruction
}

// InterpretInstance wraps a linked Program and an InterpContext (spec
// §4.E). Its entire public contract for driving execution is More.
type InterpretInstance struct {
	program *Program
	suite   *command.Suite
	ctx     *register.Context

	pc    int
	inert bool
}

// NewInstance builds an InterpretInstance ready to run program against ctx
// using suite to decode opcodes.
func NewInstance(program *Program, suite *command.Suite, ctx *register.Context) *InterpretInstance {
	return &InterpretInstance{program: program, suite: suite, ctx: ctx}
}

// Context returns the InterpContext this instance is driving.
func (vm *InterpretInstance) Context() *register.Context { return vm.ctx }

// More advances execution until the next voluntary pause point, or until
// the program terminates or errors. It returns true if execution should
// continue (a pause was consumed), false if the program has terminated —
// whether by reaching its end or by error. Once More has returned an
// error, the instance is inert and every subsequent call returns
// (false, nil) without doing further work.
func (vm *InterpretInstance) More(ctx context.Context, ag *task.Agent) (bool, error) {
	if vm.inert {
		return false, nil
	}

	for {
		if vm.pc >= len(vm.program.Instructions) {
			vm.inert = true
			vm.ctx.Finish()
			return false, nil
		}

		in := vm.program.Instructions[vm.pc]
		vm.ctx.SetBreadcrumb("", vm.pc)

		deserialize, err := vm.suite.Lookup(in.Opcode)
		if err != nil {
			return vm.fail(err)
		}
		cmd, err := deserialize(in.Operands)
		if err != nil {
			return vm.fail(err)
		}

		vm.pc++

		if err := cmd.Run(ctx, ag, vm.ctx); err != nil {
			return vm.fail(err)
		}

		if vm.ctx.Paused() {
			vm.ctx.Resume()
			return true, nil
		}
	}
}

func (vm *InterpretInstance) fail(err error) (bool, error) {
	vm.inert = true
	vm.ctx.Finish()
	return false, err
}

// Inert reports whether the instance has terminated (normally or by
// error) and will no longer execute further instructions.
func (vm *InterpretInstance) Inert() bool { return vm.inert }
