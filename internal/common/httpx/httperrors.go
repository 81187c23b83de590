package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

// Error represents an HTTP error response with status code and description.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
}

// Failure is the error result code in error responses.
const Failure int = 0

// Send writes the error response to the provided ResponseWriter. A nil writer
// is ignored.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rsp := &errorRsp{
		Result: Failure,
		Error:  e.Description,
	}
	rspJson, err := json.Marshal(rsp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("unable to encode error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(rspJson)
}

// Error returns the error description.
func (e *Error) Error() string {
	return e.Description
}

// Is reports whether the error matches the target error.
func (current Error) Is(other error) bool {
	return current.Error() == other.Error()
}

// SendError sends an application error as an HTTP error response. A nil error
// is ignored.
func SendError(w http.ResponseWriter, err apperrors.Error) {
	if err == nil {
		return
	}
	statusCode := err.StatusCode()
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	httperror := &Error{
		StatusCode:  statusCode,
		Description: err.ErrorAll(),
	}
	httperror.Send(w)
}

// ErrReqMethodNotSupported returns an error for unsupported HTTP methods.
func ErrReqMethodNotSupported() *Error {
	return &Error{
		Description: "request method not supported",
		StatusCode:  http.StatusMethodNotAllowed,
	}
}

// ErrUnableToParseReqData returns an error for malformed request bodies.
func ErrUnableToParseReqData() *Error {
	return &Error{
		Description: "unable to parse request data",
		StatusCode:  http.StatusBadRequest,
	}
}

// ErrUnableToReadRequest returns an error for unreadable request bodies.
func ErrUnableToReadRequest() *Error {
	return &Error{
		Description: "unable to read request",
		StatusCode:  http.StatusBadRequest,
	}
}

// ErrInvalidRequest returns a bad-request error with an optional detail message.
func ErrInvalidRequest(msg ...string) *Error {
	description := "invalid request"
	if len(msg) > 0 {
		description = fmt.Sprintf("%s: %s", description, msg[0])
	}
	return &Error{
		Description: description,
		StatusCode:  http.StatusBadRequest,
	}
}

// ErrUnauthorized returns an unauthorized error with an optional detail message.
func ErrUnauthorized(msg ...string) *Error {
	description := "unauthorized"
	if len(msg) > 0 {
		description = fmt.Sprintf("%s: %s", description, msg[0])
	}
	return &Error{
		Description: description,
		StatusCode:  http.StatusUnauthorized,
	}
}

// ErrRequestTimeout returns a timeout error.
func ErrRequestTimeout() *Error {
	return &Error{
		Description: "request timed out",
		StatusCode:  http.StatusRequestTimeout,
	}
}

// ErrApplicationError returns an internal server error with an optional detail
// message.
func ErrApplicationError(msg ...string) *Error {
	description := "application error"
	if len(msg) > 0 {
		description = fmt.Sprintf("%s: %s", description, msg[0])
	}
	return &Error{
		Description: description,
		StatusCode:  http.StatusInternalServerError,
	}
}
