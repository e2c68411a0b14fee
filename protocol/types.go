package protocol

import (
	"strconv"
	"strings"
)

// Methods understood by the dispatcher, lower-cased as the parser stores them
const (
	MethodGet    = "get"
	MethodPost   = "post"
	MethodPut    = "put"
	MethodDelete = "delete"
)

// Value is a header value. Purely numeric values are also exposed as integers.
type Value struct {
	Raw       string
	Integer   int64
	IsInteger bool
}

// NewValue builds a Value, coercing all-digit strings to integers
func NewValue(raw string) Value {
	v := Value{Raw: raw}
	if isDigits(raw) {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			v.Integer = n
			v.IsInteger = true
		}
	}
	return v
}

// String returns the raw header text
func (v Value) String() string {
	return v.Raw
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Field is a single normalized header
type Field struct {
	Name  string
	Value Value
}

// Headers is the structured form of one request's header block
type Headers struct {
	RemoteAddr string
	Method     string
	URI        string

	// ContentLength is -1 unless a numeric Content-Length header was seen
	ContentLength int64

	fields []Field
	index  map[string]int
}

// NewHeaders returns an empty header set for a request from remoteAddr
func NewHeaders(remoteAddr string) *Headers {
	return &Headers{
		RemoteAddr:    remoteAddr,
		ContentLength: -1,
		index:         make(map[string]int),
	}
}

// NormalizeName lower-cases a header name and strips hyphens:
// "Content-Length" becomes "contentlength".
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "")
}

// Set stores value under the normalized name. A repeated name replaces
// the earlier value and keeps its position.
func (h *Headers) Set(name, raw string) {
	key := NormalizeName(name)
	v := NewValue(raw)

	if i, ok := h.index[key]; ok {
		h.fields[i].Value = v
	} else {
		h.index[key] = len(h.fields)
		h.fields = append(h.fields, Field{Name: key, Value: v})
	}

	if key == "contentlength" {
		if v.IsInteger {
			h.ContentLength = v.Integer
		} else {
			h.ContentLength = -1
		}
	}
}

// Get returns the value stored under name (normalized before lookup)
func (h *Headers) Get(name string) (Value, bool) {
	i, ok := h.index[NormalizeName(name)]
	if !ok {
		return Value{}, false
	}
	return h.fields[i].Value, true
}

// Fields returns the headers in arrival order
func (h *Headers) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Len returns the number of distinct headers
func (h *Headers) Len() int {
	return len(h.fields)
}

// Segments splits the URI path into its non-empty "/"-separated parts
func (h *Headers) Segments() []string {
	parts := strings.Split(h.URI, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
