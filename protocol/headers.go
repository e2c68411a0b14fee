package protocol

import (
	"strings"
)

// ParseHeaders structures framed header lines.
//
// Line 0 must split on single spaces into exactly method, URI and protocol
// version; the version is discarded and the method lower-cased. Every other
// line is split on its first colon into a non-empty name and a value,
// which may be empty.
func ParseHeaders(lines []string, remoteAddr string) (*Headers, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyRequest
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, &ParseError{Line: 0, Text: lines[0], Err: ErrBadRequestLine}
	}

	h := NewHeaders(remoteAddr)
	h.Method = strings.ToLower(parts[0])
	h.URI = parts[1]

	for i, line := range lines[1:] {
		name, value, ok := splitHeader(line)
		if !ok {
			return nil, &ParseError{Line: i + 1, Text: line, Err: ErrBadHeaderLine}
		}
		h.Set(name, value)
	}

	return h, nil
}

// splitHeader splits "name: value". Whitespace around the colon is ignored.
func splitHeader(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
