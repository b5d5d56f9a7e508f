package httperr

import "errors"

// Business codes raised by local rules.
const (
	CodeInvalidTransition = "invalid_transition"
	CodePendingChange     = "pending_change"
	CodeForbiddenForRole  = "forbidden_for_role"
	CodeNotFound          = "not_found"
	CodeInvalidRequest    = "invalid_request"
	CodeNotLoggedIn       = "not_logged_in"
	CodeInvalidCreds      = "invalid_credentials"
)

type BusinessError struct {
	Code string
}

func (e BusinessError) Error() string {
	return e.Code
}

func ErrBusiness(code string) error {
	return BusinessError{Code: code}
}

func IsBusiness(err error, code string) bool {
	var be BusinessError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
