package pipeline

import "errors"

// Kind classifies a fatal pipeline failure. Row-level failures never carry a
// Kind; they are logged and absorbed inside the run.
type Kind string

const (
	KindConfig     Kind = "config"
	KindFetch      Kind = "fetch"
	KindCapability Kind = "capability"
)

// FatalError is a run-terminating failure. Callers map it to the single
// terminal user-visible state (static message in the display surface).
type FatalError struct {
	Kind Kind
	Err  error
}

func (e *FatalError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func fatal(kind Kind, err error) error {
	return &FatalError{Kind: kind, Err: err}
}
