package validation

import "errors"

// Error describes a submitted value that cannot be accepted.
// Messages are meant to be shown to the user as-is.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// AsError returns the validation Error in err's chain, if any
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
