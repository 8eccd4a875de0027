package volumio

import "fmt"

// NetworkError reports a failed call to the Volumio REST API, after the HTTP
// client's own retries.
type NetworkError struct {
	Endpoint   string
	WrappedErr error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("volumio API error (%s): %v", e.Endpoint, e.WrappedErr)
}

func (e *NetworkError) Unwrap() error { return e.WrappedErr }

// InvalidStateError reports a state document that could not be decoded.
type InvalidStateError struct {
	Details string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid volumio state: %s", e.Details)
}
