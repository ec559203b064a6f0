package errdef

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeHTTP          Code = "http"
	CodeScript        Code = "script"
	CodeScriptTimeout Code = "script-timeout"
	CodeUnresolved    Code = "unresolved-variables"
	CodeNoResponse    Code = "response-not-available"
	CodeParse         Code = "parse"
	CodeFilesystem    Code = "filesystem"
	CodeHistory       Code = "history"
	CodeCancelled     Code = "cancelled"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf walks the error chain and returns the first typed code it finds.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Code
	}
	return CodeUnknown
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Message returns the human-readable part without the wrapped cause chain.
func Message(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed != nil && typed.Msg != "" {
		return typed.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
