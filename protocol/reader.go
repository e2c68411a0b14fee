package protocol

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

const (
	// CRLF terminates the header block when it follows a line feed
	CRLF = "\r\n"

	// DefaultChunkSize is used when NewReader is given a non-positive size
	DefaultChunkSize = 1

	// maxHeaderBytes bounds the accumulated header block (64KiB)
	maxHeaderBytes = 64 * 1024

	// maxBodyBytes bounds a declared request body (8MiB)
	maxBodyBytes = 8 * 1024 * 1024
)

var crlfBytes = []byte(CRLF)

// Reader frames one request from a byte stream. It issues reads of exactly
// the configured chunk size and keeps any bytes read past the header block
// for ReadBody.
//
// The framer is line oriented and minimal: it does not support folded
// headers, chunked bodies or pipelined requests.
type Reader struct {
	src     io.Reader
	chunk   []byte
	pending []byte
	eof     bool
	total   int
}

// NewReader creates a Reader issuing reads of chunkSize bytes
func NewReader(src io.Reader, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{
		src:   src,
		chunk: make([]byte, chunkSize),
	}
}

// fill performs one read from the source. A zero-length read or io.EOF
// marks the stream as closed by the peer.
func (r *Reader) fill() error {
	if r.eof {
		return io.EOF
	}
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		r.pending = append(r.pending, r.chunk[:n]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.eof = true
			if n > 0 {
				return nil
			}
			return io.EOF
		}
		return err
	}
	if n == 0 {
		r.eof = true
		return io.EOF
	}
	return nil
}

// readByte returns the next byte, reading a chunk when the buffer is empty
func (r *Reader) readByte() (byte, error) {
	for len(r.pending) == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	b := r.pending[0]
	r.pending = r.pending[1:]
	return b, nil
}

// next consumes up to n bytes. It returns fewer only when the stream ends.
func (r *Reader) next(n int) ([]byte, error) {
	for len(r.pending) < n {
		if err := r.fill(); err != nil {
			out := r.take(len(r.pending))
			return out, err
		}
	}
	return r.take(n), nil
}

func (r *Reader) take(n int) []byte {
	out := make([]byte, n)
	copy(out, r.pending[:n])
	r.pending = r.pending[n:]
	return out
}

// ReadHeaderLines reads header lines until a line feed is immediately
// followed by CR LF, or until the peer closes the stream. The two bytes
// after each line feed are taken as a unit: unless they are CR LF they
// start the next line. Carriage returns are dropped; a trailing
// unterminated line is discarded, so a bare "\n\n" ending read up to
// close yields only the lines before it.
//
// An empty result is ErrEmptyRequest. Transport errors are returned as is.
func (r *Reader) ReadHeaderLines() ([]string, error) {
	var (
		lines []string
		line  []byte
	)

	appendLine := func() error {
		if !utf8.Valid(line) {
			return ErrInvalidEncoding
		}
		lines = append(lines, string(line))
		line = line[:0]
		return nil
	}

loop:
	for {
		b, err := r.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		r.total++
		if r.total > maxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}

		switch b {
		case '\r':
		case '\n':
			if err := appendLine(); err != nil {
				return nil, err
			}
			end, err := r.next(2)
			if bytes.Equal(end, crlfBytes) {
				break loop
			}
			r.total += len(end)
			if r.total > maxHeaderBytes {
				return nil, ErrHeaderTooLarge
			}
			// Not the terminator: the peeked bytes open the next line,
			// so a bare line feed never ends a line on its own.
			for _, c := range end {
				if c != '\r' {
					line = append(line, c)
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					continue
				}
				return nil, err
			}
		default:
			line = append(line, b)
		}
	}

	if len(lines) == 0 {
		return nil, ErrEmptyRequest
	}
	return lines, nil
}

// ReadBody returns exactly n body bytes, serving buffered bytes first.
// A stream that ends early yields the bytes received and ErrShortBody.
func (r *Reader) ReadBody(n int64) ([]byte, error) {
	if n < 0 {
		return nil, ErrBadHeaderLine
	}
	if n > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	body, err := r.next(int(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return body, ErrShortBody
		}
		return body, err
	}
	return body, nil
}
