package executor

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/codeflow/language"
)

// Kind classifies a failed run.
type Kind int

const (
	KindUnsupported Kind = iota + 1
	KindInit
	KindExecution
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindInit:
		return "init"
	case KindExecution:
		return "execution"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrUnsupported = errors.New("language not supported for execution")
	ErrInitFailed  = errors.New("runtime initialization failed")
	ErrExecution   = errors.New("execution failed")
	ErrTimeout     = errors.New("execution timed out")
	ErrClosed      = errors.New("executor closed")
)

// Error is the error carried by a failed Result. It matches the sentinel of
// its kind with errors.Is.
type Error struct {
	Kind    Kind
	Lang    language.Tag
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	case ErrInitFailed:
		return e.Kind == KindInit
	case ErrExecution:
		return e.Kind == KindExecution
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

func unsupported(tag language.Tag) *Error {
	return &Error{
		Kind:    KindUnsupported,
		Lang:    tag,
		Message: fmt.Sprintf("Language %q is not supported for execution", string(tag)),
	}
}

func initFailed(tag language.Tag, err error) *Error {
	return &Error{
		Kind:    KindInit,
		Lang:    tag,
		Message: fmt.Sprintf("Failed to initialize %s runtime: %v", language.Label(tag), err),
		Err:     err,
	}
}
