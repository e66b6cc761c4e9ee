// Package browser abstracts the remote browser-automation driver used to
// operate the carrier's booking site.
package browser

import "context"

// Session is one exclusive browser session. Implementations bound every
// operation with a timeout; callers must Quit on every exit path.
type Session interface {
	// Navigate loads a page by URL.
	Navigate(url string) error
	// ClickByText waits for a clickable element of the given tag whose
	// visible text matches label, scrolls it into view and clicks it.
	ClickByText(tag, label string) error
	// FillByName types value into the form field with the given name
	// attribute. Fails if no such field exists.
	FillByName(name, value string) error
	// Quit tears the session down.
	Quit() error
}

// Factory opens fresh sessions.
type Factory interface {
	NewSession(ctx context.Context, headless bool) (Session, error)
}
