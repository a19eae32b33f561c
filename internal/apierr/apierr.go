// Package apierr is the tagged-result error taxonomy the edge layer surfaces
// to clients: never a stack trace, always {kind, short message}.
package apierr

import "net/http"

// Kind classifies a failure per spec's error taxonomy.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	UpstreamTransport
	UpstreamSemantic
)

// Error is the boundary-crossing error type. Handlers never let anything
// else escape to a response.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// StatusCode maps Kind to the HTTP status spec assigns it.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case UpstreamTransport, UpstreamSemantic, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func Validationf(msg string) *Error        { return &Error{Kind: Validation, Msg: msg} }
func NotFoundf(msg string) *Error          { return &Error{Kind: NotFound, Msg: msg} }
func UpstreamTransportf(msg string) *Error { return &Error{Kind: UpstreamTransport, Msg: msg} }
func UpstreamSemanticf(msg string) *Error  { return &Error{Kind: UpstreamSemantic, Msg: msg} }
func Internalf(msg string) *Error          { return &Error{Kind: Internal, Msg: msg} }
