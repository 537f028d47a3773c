package geocode

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrQuotaExceeded is returned when the provider reports OVER_QUERY_LIMIT or
// RESOURCE_EXHAUSTED. It is expected and recoverable by waiting.
var ErrQuotaExceeded = eris.New("geocode: quota exceeded")

// TransportError reports an HTTP failure, a non-200 response or a response
// body that could not be interpreted.
type TransportError struct {
	Err        error
	StatusCode int // 0 when no response was received
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("geocode: transport (http %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("geocode: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsQuotaExceeded reports whether err signals provider quota exhaustion.
func IsQuotaExceeded(err error) bool {
	return err != nil && errors.Is(err, ErrQuotaExceeded)
}

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
