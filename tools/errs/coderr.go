package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Stable codes for errors that travel back to a client as an `error` frame.
const (
	CodeMalformed    = 1001 // unparseable frame or missing/invalid field
	CodeUnauthorized = 1002 // room-scoped action before join
	CodeRateLimited  = 1003
	CodeUnreachable  = 1004 // no local connection and no relay path
	CodeCollaborator = 1005 // store/queue/relay transport failure
	CodeBlocked      = 1006
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Code extracts the stable code from err, or 0 when err carries none.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func New(msg string) error { return errors.New(msg) }

var (
	ErrMalformed    = NewCodeError(CodeMalformed, "malformed payload")
	ErrUnauthorized = NewCodeError(CodeUnauthorized, "join required")
	ErrRateLimited  = NewCodeError(CodeRateLimited, "rate limit exceeded")
	ErrUnreachable  = NewCodeError(CodeUnreachable, "recipient not connected")
	ErrCollaborator = NewCodeError(CodeCollaborator, "upstream service unavailable")
	ErrBlocked      = NewCodeError(CodeBlocked, "blocked relationship")
)
