package inbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers rejected requests and non-2xx responses.
	ErrNetwork = errors.New("inbox: network failure")
	// ErrDecode covers malformed bodies and envelopes without a success flag.
	ErrDecode = errors.New("inbox: decode failure")
)

// APIError is returned when the API answers with an error status or success:false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inbox api error %d", e.Status)
	}
	return fmt.Sprintf("inbox api error %d: %s", e.Status, e.Message)
}

// Unwrap lets callers match API errors with errors.Is(err, ErrNetwork).
func (e *APIError) Unwrap() error {
	return ErrNetwork
}
