// Package command implements the pluggable opcode registry: a Suite
// mapping flat opcode numbers to deserializers that materialize executable
// Commands bound to their operand registers, validated eagerly at
// registration time rather than at lookup time.
package command

import (
	"context"
	"sync"

	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/instr"
	"github.com/joeycumines/dauphin/register"
	"github.com/joeycumines/dauphin/task"
)

// Command is one materialized, operand-bound executable instruction. Run
// may suspend the owning task via ag's scheduling primitives (Tick, Timer,
// Await, ...) to model an "async" command; a command that
// returns without suspending is, from the VM's point of view, "sync" — the
// distinction is behavioral, not a separate interface, since both shapes
// drive the same cooperative task goroutine.
type Command interface {
	Run(ctx context.Context, ag *task.Agent, ictx *register.Context) error
}

// CommandFunc adapts a plain function to Command.
type CommandFunc func(ctx context.Context, ag *task.Agent, ictx *register.Context) error

func (f CommandFunc) Run(ctx context.Context, ag *task.Agent, ictx *register.Context) error {
	return f(ctx, ag, ictx)
}

// Deserializer materializes a Command bound to its decoded operands.
type Deserializer func(operands []instr.Operand) (Command, error)

// Suite is a CommandInterpretSuite: the registry of opcode -> Deserializer
// a VM instance consults to decode each instruction it steps over.
type Suite struct {
	mu            sync.RWMutex
	deserializers map[uint32]Deserializer
}

// NewSuite returns an empty Suite.
func NewSuite() *Suite {
	return &Suite{deserializers: make(map[uint32]Deserializer)}
}

// Register binds a flat opcode to a Deserializer. Registering the same
// opcode twice is a Fatal error — a programming mistake in library setup,
// not a runtime condition.
func (s *Suite) Register(opcode uint32, d Deserializer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deserializers[opcode]; exists {
		return diag.New(diag.Fatal, diag.Code{Namespace: "command", Number: 1}, "opcode %d registered twice", opcode)
	}
	s.deserializers[opcode] = d
	return nil
}

// RegisterSet registers one InstructionSetId's whole opcode range at once,
// resolving each local opcode to its flat number via mapper.
func (s *Suite) RegisterSet(mapper *instr.SetMapper, id instr.InstructionSetId, deserializers []Deserializer) error {
	for local, d := range deserializers {
		flat, err := mapper.Resolve(id, uint32(local))
		if err != nil {
			return err
		}
		if err := s.Register(flat, d); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves a flat opcode to its Deserializer. An unknown opcode is
// Fatal: it means a program was linked against an instruction set this
// suite does not implement.
func (s *Suite) Lookup(opcode uint32) (Deserializer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deserializers[opcode]
	if !ok {
		return nil, diag.New(diag.Fatal, diag.Code{Namespace: "command", Number: 2}, "unknown opcode %d", opcode)
	}
	return d, nil
}

// Noop returns a Deserializer producing a Command that does nothing, for
// compile-only opcodes that should never actually execute but may
// accidentally reach the interpreter.
func Noop() Deserializer {
	return func([]instr.Operand) (Command, error) {
		return CommandFunc(func(context.Context, *task.Agent, *register.Context) error { return nil }), nil
	}
}

// Error returns a Deserializer producing a Command that always fails with
// a Fatal error carrying msg, for opcodes that must never actually execute.
func Error(msg string) Deserializer {
	return func([]instr.Operand) (Command, error) {
		return CommandFunc(func(context.Context, *task.Agent, *register.Context) error {
			return diag.New(diag.Fatal, diag.Code{Namespace: "command", Number: 3}, "%s", msg)
		}), nil
	}
}
