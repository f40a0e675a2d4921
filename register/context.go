package register

import "github.com/joeycumines/dauphin/diag"

// PayloadKey identifies one (library, name) payload slot.
type PayloadKey struct {
	Library string
	Name    string
}

func (k PayloadKey) String() string { return k.Library + "." + k.Name }

// Payload is host-supplied state scoped to one VM run. Teardown is invoked
// exactly once, from InterpContext.Finish, for every payload actually
// instantiated during the run.
type Payload interface {
	Teardown()
}

// PayloadFactory constructs a fresh Payload for one InterpContext.
type PayloadFactory func() Payload

// Breadcrumb is the (filename, line) position InterpContext tracks for
// diagnostics.
type Breadcrumb struct {
	Filename string
	Line     int
}

// Context is an InterpContext: the per-run state a VM instance owns
// alongside its linked Program.
type Context struct {
	Registers *File
	// Parent is the enclosing stack frame's File, one level outward, used
	// to resolve UpRegister operands. Nil at the outermost
	// frame.
	Parent *File

	factories map[PayloadKey]PayloadFactory
	payloads  map[PayloadKey]Payload

	breadcrumb Breadcrumb
	paused     bool
	finished   bool
}

// NewContext builds a Context over regs, with factories available for
// lazy payload instantiation.
func NewContext(regs *File, factories map[PayloadKey]PayloadFactory) *Context {
	return &Context{
		Registers: regs,
		factories: factories,
		payloads:  make(map[PayloadKey]Payload),
	}
}

// Payload returns the instantiated payload for key, constructing it via the
// registered factory on first access. Returns a NoSuch diag.Error if no
// factory was registered for key.
func (c *Context) Payload(key PayloadKey) (Payload, error) {
	if p, ok := c.payloads[key]; ok {
		return p, nil
	}
	factory, ok := c.factories[key]
	if !ok {
		return nil, diag.New(diag.NoSuch, diag.Code{Namespace: "register", Number: 2}, "no payload factory registered for %s", key)
	}
	p := factory()
	c.payloads[key] = p
	return p, nil
}

// SetBreadcrumb records the current (filename, line) position.
func (c *Context) SetBreadcrumb(filename string, line int) {
	c.breadcrumb = Breadcrumb{Filename: filename, Line: line}
}

// Breadcrumb returns the current position.
func (c *Context) Breadcrumb() Breadcrumb { return c.breadcrumb }

// Pause marks the context as paused. Resume clears it. Paused reports the
// current flag. These back the VM's pause-instruction handling.
func (c *Context) Pause()        { c.paused = true }
func (c *Context) Resume()       { c.paused = false }
func (c *Context) Paused() bool  { return c.paused }

// Finish tears down every payload that was actually instantiated during
// this run, and may be called more than once (subsequent calls are no-ops).
func (c *Context) Finish() {
	if c.finished {
		return
	}
	c.finished = true
	for _, p := range c.payloads {
		p.Teardown()
	}
}
