// internal/browser/jsexec/errors.go
package jsexec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

var (
	// ErrClosed is returned once the runtime's loop has stopped.
	ErrClosed = errors.New("javascript runtime is closed")
	// ErrScriptTimeout is the interrupt value used when a script exceeds its budget.
	ErrScriptTimeout = errors.New("script timed out")
)

// ScriptError is an uncaught exception (or interruption) raised by page script.
type ScriptError struct {
	// Source names the script: "inline script #2", a src URL, "setTimeout".
	Source string
	// Name is the JS error name (TypeError, ReferenceError...), empty for thrown non-errors.
	Name    string
	Message string
	// Interrupted is set when the script was stopped by a deadline.
	Interrupted bool
	cause       error
}

func (e *ScriptError) Error() string {
	var sb strings.Builder
	if e.Source != "" {
		sb.WriteString(e.Source)
		sb.WriteString(": ")
	}
	if e.Name != "" {
		sb.WriteString(e.Name)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

func (e *ScriptError) Unwrap() error { return e.cause }

// NewScriptError converts an error returned by goja into a ScriptError.
func NewScriptError(source string, err error) *ScriptError {
	var se *ScriptError
	if errors.As(err, &se) {
		return se
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause := err
		if v, ok := interrupted.Value().(error); ok {
			cause = v
		}
		return &ScriptError{Source: source, Message: fmt.Sprint(interrupted.Value()), Interrupted: true, cause: cause}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		se := &ScriptError{Source: source, Message: exception.Error(), cause: err}
		if obj, ok := exception.Value().(*goja.Object); ok {
			if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
				se.Name = name.String()
			}
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				se.Message = msg.String()
			}
		} else if v := exception.Value(); v != nil {
			se.Message = v.String()
		}
		return se
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptError{Source: source, Name: "SyntaxError", Message: syntax.Error(), cause: err}
	}

	return &ScriptError{Source: source, Message: err.Error(), cause: err}
}
