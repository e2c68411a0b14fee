package protocol

import (
	"bufio"
	"io"
	"strconv"
)

// StatusOK is the status line of a successful GET
const StatusOK = "HTTP/1.1 200 OK"

// FormatResponse renders a complete response: status line, JSON content
// type, the body's byte length, a blank line and the body.
func FormatResponse(statusLine string, body []byte) []byte {
	length := strconv.Itoa(len(body))
	out := make([]byte, 0, len(statusLine)+len(length)+len(body)+64)
	out = append(out, statusLine...)
	out = append(out, CRLF...)
	out = append(out, "Content-Type: application/json"...)
	out = append(out, CRLF...)
	out = append(out, "Content-Length: "...)
	out = append(out, length...)
	out = append(out, CRLF...)
	out = append(out, CRLF...)
	out = append(out, body...)
	return out
}

// Writer writes catalog responses to a connection
type Writer struct {
	bw      *bufio.Writer
	catalog *Catalog
}

// NewWriter creates a response writer backed by catalog
func NewWriter(w io.Writer, catalog *Catalog) *Writer {
	return &Writer{
		bw:      bufio.NewWriter(w),
		catalog: catalog,
	}
}

// WriteCode writes the response for code and reports whether the catalog had it
func (w *Writer) WriteCode(code Code) (bool, error) {
	resp, ok := w.catalog.Render(code)
	if _, err := w.bw.Write(resp); err != nil {
		return ok, err
	}
	return ok, w.bw.Flush()
}

// WriteJSON writes body verbatim under statusLine, bypassing the catalog
func (w *Writer) WriteJSON(statusLine string, body []byte) error {
	if _, err := w.bw.Write(FormatResponse(statusLine, body)); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Reset resets the writer to write to a new underlying writer
func (w *Writer) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}
