// internal/browser/jsbind/errors.go
package jsbind

import (
	"errors"

	"github.com/dop251/goja"
)

// NavigationError represents a failure during a page navigation attempt.
type NavigationError struct {
	URL     string
	Message string
	Err     error // Underlying network or protocol error
}

// Error implements the error interface.
func (e *NavigationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *NavigationError) Unwrap() error {
	return e.Err
}

// domExceptionCodes holds the legacy numeric codes page script still checks.
var domExceptionCodes = map[string]int{
	"HierarchyRequestError":      3,
	"InvalidCharacterError":      5,
	"NoModificationAllowedError": 7,
	"NotFoundError":              8,
	"NotSupportedError":          9,
	"InvalidStateError":          11,
	"SyntaxError":                12,
	"SecurityError":              18,
	"NetworkError":               19,
	"AbortError":                 20,
}

// newDOMException builds an Error object carrying a DOMException name and code.
func (b *DOMBridge) newDOMException(name, message string) *goja.Object {
	ctor, _ := goja.AssertConstructor(b.vm.Get("Error"))
	obj, err := ctor(nil, b.vm.ToValue(message))
	if err != nil {
		return b.vm.NewGoError(err)
	}
	_ = obj.Set("name", name)
	_ = obj.Set("code", domExceptionCodes[name])
	return obj
}

// throwDOMException raises a DOMException in the calling script.
func (b *DOMBridge) throwDOMException(name, message string) {
	panic(b.newDOMException(name, message))
}

// rethrow propagates an error returned by a nested JS call back into the
// calling script. An interruption is re-armed so the caller stops too.
func (b *DOMBridge) rethrow(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		b.vm.Interrupt(interrupted.Value())
		panic(b.vm.NewGoError(err))
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		panic(exception.Value())
	}
	panic(b.vm.NewGoError(err))
}
