package cerr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/clog"
)

// Violation is a detail item returned to the user alongside the error
// message, e.g. one per failed submission pre-flight check.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type Error struct {
	Code    Code
	Msg     string      // message returned to the user together with Code
	Err     error       // underlying error kept for logs
	Stack   string      // stack trace, captured for error-level codes
	Details []Violation // detailed violations returned to the user
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.HTTPStatusToLevel(code.HTTPCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func NewErrorWithDetails(code Code, msg string, underlying error, details []Violation) *Error {
	err := NewError(code, msg, underlying)
	err.Details = details
	return err
}

func (e *Error) AddDetail(field, message string) *Error {
	e.Details = append(e.Details, Violation{Field: field, Message: message})
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}
