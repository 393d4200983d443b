package btf

import "fmt"

// ErrorKind classifies the terminal, write-once error an Encoder, Decoder
// or Tree latches. Once latched, a Kind never changes and never clears;
// only destroying (or re-parsing, for a Tree) moves past it.
type ErrorKind uint8

const (
	// KindIO covers sink/source failures or an unexpected end while
	// streaming.
	KindIO ErrorKind = iota
	// KindInvalid covers malformed wire bytes: a reserved opcode, an
	// overlong UTF-8 sequence, an out-of-range timestamp payload, or a
	// truncated pre-loaded blob.
	KindInvalid
	// KindUnsupported covers well-formed input that uses a disabled
	// feature: an ext opcode with extensions off, or a v5-only opcode
	// while running in v4 compatibility mode.
	KindUnsupported
	// KindType covers a requested type that does not match the actual
	// one: a getter mismatch, rejected UTF-8, or a NUL byte inside a
	// C-string copy.
	KindType
	// KindTooBig covers a value or message that exceeds a configured
	// bound: buffer capacity, MaxSize, or MaxNodes.
	KindTooBig
	// KindMemory covers an allocation failure.
	KindMemory
	// KindBug covers programmer misuse: an unbalanced compound close, a
	// close of the wrong kind, a flush callback invoked without ever
	// being installed, or an otherwise invalid argument. KindBug errors
	// also trigger debugBreak in development builds.
	KindBug
	// KindData covers a semantic violation found by the application or
	// by a query: a missing or duplicate map key.
	KindData
	// KindEOF covers a clean end of the source between messages.
	KindEOF
)

var errorKindNames = [...]string{
	KindIO:          "io",
	KindInvalid:     "invalid",
	KindUnsupported: "unsupported",
	KindType:        "type",
	KindTooBig:      "too_big",
	KindMemory:      "memory",
	KindBug:         "bug",
	KindData:        "data",
	KindEOF:         "eof",
}

// String renders the Kind's taxonomy name, e.g. "too_big".
func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "unknown"
}

// Error is the single error value type latched by Encoder, Decoder and
// Tree. It is returned verbatim by Err() once latched and is never
// wrapped further.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// newError builds an *Error. Kept as a constructor (rather than literal
// struct use at every call site) so messages stay consistently formatted.
func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NewErrorIO, NewErrorInvalid and NewErrorTooBig build Errors of the
// corresponding kind for callers outside this package — notably the
// tree parser, which latches its own io/invalid/too_big errors while
// walking a message (spec.md §4.7).
func NewErrorIO(format string, args ...any) *Error      { return newError(KindIO, format, args...) }
func NewErrorInvalid(format string, args ...any) *Error { return newError(KindInvalid, format, args...) }
func NewErrorTooBig(format string, args ...any) *Error  { return newError(KindTooBig, format, args...) }
func NewErrorType(format string, args ...any) *Error    { return newError(KindType, format, args...) }
func NewErrorData(format string, args ...any) *Error    { return newError(KindData, format, args...) }

// latch is embedded by Writer and Reader (tree.Tree and tree.Parser
// keep their own *Error field with the same first-wins rule). It holds the
// first-wins, write-once error state described in spec.md §7 and the
// idempotent-latch property of §8.1.8.
type latch struct {
	err     *Error
	onError func(*Error)
}

// fail latches err if no error is latched yet, then invokes the
// installed error callback exactly once. Later calls to fail with the
// latch already set are no-ops: the original error is never replaced and
// the callback never fires twice.
func (l *latch) fail(err *Error) *Error {
	if l.err != nil {
		return l.err
	}
	l.err = err
	if l.onError != nil {
		l.onError(err)
	}
	if err.Kind == KindBug {
		debugBreak()
	}
	return l.err
}

// ok reports whether no error has been latched yet.
func (l *latch) ok() bool { return l.err == nil }

// Err returns the latched error, or nil if none has latched.
func (l *latch) Err() *Error { return l.err }
