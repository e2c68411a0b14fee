package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every error caused by a badly framed request
var ErrMalformed = errors.New("malformed request")

// Framing and parsing failures. All of them match errors.Is(err, ErrMalformed).
var (
	// ErrEmptyRequest indicates the peer sent no complete header line
	ErrEmptyRequest = fmt.Errorf("%w: empty request", ErrMalformed)

	// ErrBadRequestLine indicates line 0 is not "METHOD URI VERSION"
	ErrBadRequestLine = fmt.Errorf("%w: bad request line", ErrMalformed)

	// ErrBadHeaderLine indicates a header line is not "name: value"
	ErrBadHeaderLine = fmt.Errorf("%w: bad header line", ErrMalformed)

	// ErrHeaderTooLarge indicates the header block exceeded maxHeaderBytes
	ErrHeaderTooLarge = fmt.Errorf("%w: header block too large", ErrMalformed)

	// ErrInvalidEncoding indicates a header line is not valid UTF-8
	ErrInvalidEncoding = fmt.Errorf("%w: header is not valid UTF-8", ErrMalformed)

	// ErrBodyTooLarge indicates a declared body size above maxBodyBytes
	ErrBodyTooLarge = fmt.Errorf("%w: body too large", ErrMalformed)
)

// ErrShortBody indicates the peer closed before sending the declared body
var ErrShortBody = errors.New("body shorter than content length")

// ParseError reports which header line failed to parse
type ParseError struct {
	Line int
	Text string
	Err  error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

// Unwrap returns the wrapped error
func (e *ParseError) Unwrap() error {
	return e.Err
}
