package schemas

import (
	"time"
)

// -- Page Interaction Schemas --

// NVPair is a generic name/value pair, used for headers and form fields where
// order and duplicates matter.
type NVPair struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// HistoryState represents an entry in the browser's session history.
type HistoryState struct {
	State interface{} `json:"state"`
	Title string      `json:"title"`
	URL   string      `json:"url"`
}

// NavigationRequest describes a navigation initiated by page script: a
// location assignment, a form submission or a link activation.
type NavigationRequest struct {
	URL         string `json:"url"`
	Method      string `json:"method"`
	Body        []byte `json:"body,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	// Replace swaps the current history entry instead of pushing a new one.
	Replace bool `json:"replace"`
}

// FetchRequest represents the data for a request initiated from JS (XHR).
type FetchRequest struct {
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Headers []NVPair `json:"headers"`
	Body    []byte   `json:"body"`
}

// FetchResponse represents the data from a fetch response.
type FetchResponse struct {
	URL        string   `json:"url"`
	Status     int      `json:"status"`
	StatusText string   `json:"statusText"`
	Headers    []NVPair `json:"headers"`
	Body       []byte   `json:"body"`
}

// DialogKind distinguishes the three modal dialogs a page can open.
type DialogKind string

const (
	DialogAlert   DialogKind = "alert"
	DialogConfirm DialogKind = "confirm"
	DialogPrompt  DialogKind = "prompt"
)

// ConsoleLog represents a single entry from the page's console.
type ConsoleLog struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Capture is what a runner observed while a page was loaded.
type Capture struct {
	// Alerts holds every dialog message in emission order.
	Alerts   []string `json:"alerts"`
	FinalURL string   `json:"finalUrl"`
	// PendingJobs is the number of timers or requests still outstanding when
	// the async deadline expired.
	PendingJobs int           `json:"pendingJobs"`
	ScriptErrs  []string      `json:"scriptErrors,omitempty"`
	Duration    time.Duration `json:"duration"`
}
