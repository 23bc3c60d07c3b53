// internal/browser/jsbind/interfaces.go
package jsbind

import (
	"context"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// BrowserEnvironment is what the bindings need from the owning session:
// navigation, the network, cookies, history and the dialog sink. Methods
// are called on the event loop goroutine, except ExecuteFetch which may
// also be called from request goroutines.
type BrowserEnvironment interface {
	// JSNavigate starts a script-initiated navigation. Fragment-only changes
	// are applied before it returns; document loads happen after the
	// current script finishes.
	JSNavigate(req schemas.NavigationRequest)
	// CurrentURL is the document URL exactly as navigated, fragment included.
	CurrentURL() string
	// ResolveURL resolves a reference against the document URL.
	ResolveURL(ref string) (string, error)

	ExecuteFetch(ctx context.Context, req schemas.FetchRequest) (*schemas.FetchResponse, error)

	AddCookieFromString(cookieStr string) error
	GetCookieString() (string, error)

	// PushHistory and ReplaceHistory change the URL without loading a
	// document (pushState/replaceState).
	PushHistory(state *schemas.HistoryState) error
	ReplaceHistory(state *schemas.HistoryState) error
	GetHistoryLength() int
	GetCurrentHistoryState() interface{}
	// TraverseHistory queues a history traversal by delta entries.
	TraverseHistory(delta int)

	// RecordDialog appends a dialog message to the alert sink.
	RecordDialog(kind schemas.DialogKind, message string)
}

// Scheduler runs work for the bindings on the event loop. It is satisfied
// by *jsexec.Runtime.
type Scheduler interface {
	// Go runs work off the loop and its continuation on the loop, tracked
	// as one background job.
	Go(source string, work func() func(vm *goja.Runtime))
	// Invoke calls page code from the loop, recording uncaught exceptions.
	Invoke(source string, fn func() error)
	// ReportError records an uncaught exception.
	ReportError(source string, err error)
}
