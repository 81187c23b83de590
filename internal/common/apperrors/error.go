// Package apperrors provides the error type used across the service. It extends
// the standard error interface with wrapping, HTTP status codes, and message
// derivation so that error taxonomies can be declared as chains of typed values.
package apperrors

// Error is the application error interface. Methods return Error so that call
// sites can derive and annotate errors fluently. Deriving never mutates the
// receiver; every method returns a new value.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // fresh error using the current one as template
	Msg(msg string) Error                  // new message, wraps the original
	MsgErr(msg string, err ...error) Error // new message, wraps original plus extra errors
	Err(err ...error) Error                // attaches errors, keeps the message
	SetExpandError(bool) Error             // controls whether ErrorAll expands wrapped errors
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the HTTP status code
	ErrorAll() string                      // full message including wrapped errors
	UnwrapAll() []error                    // all wrapped errors
}
