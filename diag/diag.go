// Package diag provides the error-kind and structured-message machinery
// shared by every other package in this module.
package diag

import (
	"fmt"
	"strconv"

	"github.com/joeycumines/go-utilpkg/jsonenc"
	"github.com/rs/zerolog"
)

// Kind classifies an error or message the way the embedding host needs to
// react to it.
type Kind int

const (
	// Fatal means the whole embedding should consider the process
	// unrecoverable (a broken programming invariant, a malformed binary).
	Fatal Kind = iota
	// Operational means a request failed, a file is missing, or an
	// operation otherwise could not complete; other operations may proceed.
	Operational
	// NoSuch means a referenced entity (program, stick, allotment) is absent.
	NoSuch
	// Temporary is retried internally and surfaced only as an informational
	// warning.
	Temporary
	// Unavailable means the server refuses for a reason the host may act on.
	Unavailable
)

// String renders the Kind the way it appears in a structured message.
func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Operational:
		return "operational"
	case NoSuch:
		return "no-such"
	case Temporary:
		return "temporary"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// zerologLevel maps a Kind onto the zerolog level used when the message is
// logged: fatal conditions are loud, temporary ones are quiet.
func (k Kind) zerologLevel() zerolog.Level {
	switch k {
	case Fatal:
		return zerolog.PanicLevel
	case Operational:
		return zerolog.ErrorLevel
	case NoSuch:
		return zerolog.WarnLevel
	case Unavailable:
		return zerolog.ErrorLevel
	case Temporary:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// Code is a (namespace, number) pair identifying an error more specifically
// than Kind alone, e.g. Code{"reqmgr", 4} for "BackendRefused".
type Code struct {
	Namespace string
	Number    int
}

func (c Code) String() string { return fmt.Sprintf("%s:%d", c.Namespace, c.Number) }

// Error is the error type returned by every component in this module. It
// always carries a Kind, optionally a Code, and an Identity correlating it
// to the task/request/program that produced it.
type Error struct {
	Kind     Kind
	Code     Code
	Text     string
	Identity uint64
	Cause    error
}

func (e *Error) Error() string {
	if e.Code != (Code{}) {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Text)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error carrying a kind and code.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Text: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Cause to a newly constructed Error.
func Wrap(kind Kind, code Code, cause error, format string, args ...any) *Error {
	e := New(kind, code, format, args...)
	e.Cause = cause
	return e
}

// Operr constructs an Operational error with no code.
func Operr(format string, args ...any) *Error {
	return New(Operational, Code{}, format, args...)
}

// Message is the user-visible structured message the core emits:
// {kind, code(pair), text, identity}.
type Message struct {
	Kind     Kind
	Code     Code
	Text     string
	Identity uint64
}

// MessageSender is the host-registered collaborator that receives
// structured messages. Metric reports are fire-and-forget: a MessageSender
// must never block the caller or propagate its own errors.
type MessageSender interface {
	Send(Message)
}

// Sink adapts a zerolog.Logger into a MessageSender, and is the default
// used when the host does not register one. It also exposes direct logging
// for components that want to log without going through the Message
// indirection (e.g. the task executor's own lifecycle events).
type Sink struct {
	Logger zerolog.Logger
}

// NewSink wraps logger as a diag.Sink.
func NewSink(logger zerolog.Logger) *Sink { return &Sink{Logger: logger} }

var _ MessageSender = (*Sink)(nil)

// Send implements MessageSender, emitting one structured zerolog event per
// message. Metric/Temporary messages are intentionally cheap: no stack
// capture, no blocking IO beyond whatever the zerolog writer does.
func (s *Sink) Send(m Message) {
	ev := s.Logger.WithLevel(m.Kind.zerologLevel())
	ev = ev.Str("kind", m.Kind.String())
	if m.Code != (Code{}) {
		ev = ev.Str("code", m.Code.String())
	}
	if m.Identity != 0 {
		ev = ev.Uint64("identity", m.Identity)
	}
	ev.Msg(m.Text)
}

// AppendJSON renders a Message as a single-line compact JSON object using
// jsonenc's allocation-light append helpers, for transports (e.g. the
// request manager's Metric mini-request) that need a byte-oriented
// encoding rather than a zerolog event.
func AppendJSON(dst []byte, m Message) []byte {
	dst = append(dst, '{')
	dst = append(dst, `"kind":`...)
	dst = jsonenc.AppendString(dst, m.Kind.String())
	if m.Code != (Code{}) {
		dst = append(dst, `,"code":`...)
		dst = jsonenc.AppendString(dst, m.Code.String())
	}
	dst = append(dst, `,"text":`...)
	dst = jsonenc.AppendString(dst, m.Text)
	if m.Identity != 0 {
		dst = append(dst, `,"identity":`...)
		dst = strconv.AppendUint(dst, m.Identity, 10)
	}
	dst = append(dst, '}')
	return dst
}
