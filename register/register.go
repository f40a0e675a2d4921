// Package register implements the typed RegisterFile and InterpContext:
// multi-variant register storage with copy-on-write semantics, plus the
// per-run payload map and pause/breadcrumb state a VM instance carries
// alongside it.
package register

import (
	"fmt"

	"github.com/joeycumines/dauphin/diag"
)

// Kind discriminates a Value's active variant.
type Kind int

const (
	KindEmpty Kind = iota
	KindIndexes
	KindNumbers
	KindStrings
	KindBooleans
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindIndexes:
		return "indexes"
	case KindNumbers:
		return "numbers"
	case KindStrings:
		return "strings"
	case KindBooleans:
		return "booleans"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Value is one typed multi-variant register cell.
// Exactly one of the slices is meaningful, selected by Kind; KindEmpty
// carries none.
type Value struct {
	Kind     Kind
	Indexes  []uint64
	Numbers  []float64
	Strings  []string
	Booleans []bool
	Bytes    [][]byte
}

// Empty returns the Empty-variant Value.
func Empty() *Value { return &Value{Kind: KindEmpty} }

// Len reports the semantic length for sequence-shaped variants; Empty and
// any future scalar-only variant report 0.
func (v *Value) Len() int {
	switch v.Kind {
	case KindIndexes:
		return len(v.Indexes)
	case KindNumbers:
		return len(v.Numbers)
	case KindStrings:
		return len(v.Strings)
	case KindBooleans:
		return len(v.Booleans)
	case KindBytes:
		return len(v.Bytes)
	default:
		return 0
	}
}

// clone makes a deep, independent copy — used to implement
// get_exclusive's copy-on-write contract.
func (v *Value) clone() *Value {
	out := &Value{Kind: v.Kind}
	if v.Indexes != nil {
		out.Indexes = append([]uint64(nil), v.Indexes...)
	}
	if v.Numbers != nil {
		out.Numbers = append([]float64(nil), v.Numbers...)
	}
	if v.Strings != nil {
		out.Strings = append([]string(nil), v.Strings...)
	}
	if v.Booleans != nil {
		out.Booleans = append([]bool(nil), v.Booleans...)
	}
	if v.Bytes != nil {
		out.Bytes = make([][]byte, len(v.Bytes))
		for i, b := range v.Bytes {
			out.Bytes[i] = append([]byte(nil), b...)
		}
	}
	return out
}

// Register is an opaque handle into a File.
type Register int

// cell is one slot of a File. Multiple Registers may point at the same
// Value through a Copy, tracked via shared so a later GetExclusive knows
// to clone before handing out a uniquely-owned view.
type cell struct {
	value  *Value
	shared bool
}

// File is a RegisterFile: per-task-frame typed storage. Not safe for
// concurrent use from more than one goroutine — a RegisterFile belongs to
// exactly one running InterpContext by construction.
type File struct {
	cells []cell
}

// NewFile allocates a File of n registers, all initialized Empty.
func NewFile(n int) *File {
	f := &File{cells: make([]cell, n)}
	for i := range f.cells {
		f.cells[i].value = Empty()
	}
	return f
}

func (f *File) checkBounds(reg Register) error {
	if int(reg) < 0 || int(reg) >= len(f.cells) {
		return diag.New(diag.Fatal, diag.Code{Namespace: "register", Number: 1}, "register %d out of range (file has %d)", reg, len(f.cells))
	}
	return nil
}

// Get returns the register's current value (an alias of GetShared).
func (f *File) Get(reg Register) (*Value, error) { return f.GetShared(reg) }

// GetShared returns an immutable, possibly-shared view of reg's value.
// Callers must not mutate the returned Value's slices in place.
func (f *File) GetShared(reg Register) (*Value, error) {
	if err := f.checkBounds(reg); err != nil {
		return nil, err
	}
	return f.cells[reg].value, nil
}

// GetExclusive returns a uniquely-owned view of reg's value, cloning first
// if the cell is presently shared with another register via Copy.
func (f *File) GetExclusive(reg Register) (*Value, error) {
	if err := f.checkBounds(reg); err != nil {
		return nil, err
	}
	c := &f.cells[reg]
	if c.shared {
		c.value = c.value.clone()
		c.shared = false
	}
	return c.value, nil
}

// Write overwrites reg with a fresh, uniquely-owned value.
func (f *File) Write(reg Register, v *Value) error {
	if err := f.checkBounds(reg); err != nil {
		return err
	}
	f.cells[reg] = cell{value: v}
	return nil
}

// Copy gives dst a reference-sharing alias of src's value; the next
// GetExclusive of either register clones.
func (f *File) Copy(dst, src Register) error {
	if err := f.checkBounds(dst); err != nil {
		return err
	}
	if err := f.checkBounds(src); err != nil {
		return err
	}
	v := f.cells[src].value
	f.cells[src].shared = true
	f.cells[dst] = cell{value: v, shared: true}
	return nil
}

// Len returns reg's semantic length.
func (f *File) Len(reg Register) (int, error) {
	v, err := f.GetShared(reg)
	if err != nil {
		return 0, err
	}
	return v.Len(), nil
}

// String implements fmt.Stringer for debugging register dumps.
func (v *Value) String() string {
	switch v.Kind {
	case KindEmpty:
		return "empty"
	default:
		return fmt.Sprintf("%s(len=%d)", v.Kind, v.Len())
	}
}
