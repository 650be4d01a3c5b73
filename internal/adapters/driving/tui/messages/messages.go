// Package messages defines the bubbletea messages shared between views.
package messages

// ErrorOccurred reports a failure that the active view should display.
type ErrorOccurred struct {
	Err error
}

// SessionEnded is sent when the session was torn down (expired or signed out
// elsewhere). The program returns to the shell with Reason shown.
type SessionEnded struct {
	Reason string
}

// StatusNotice is a transient one-line notice.
type StatusNotice struct {
	Text string
}
