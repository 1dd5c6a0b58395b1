package chessdto

import "fmt"

// RejectionError is a non-2xx answer from the authority. Message is the
// server's own reason and is shown to the user verbatim.
type RejectionError struct {
	Code      string
	Status    int
	Message   string
	Retryable bool
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("authority rejected request (status %d)", e.Status)
	}
	return "authority rejected request"
}
