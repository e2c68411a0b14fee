package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Code is a symbolic response outcome looked up in the catalog
type Code string

// Well-known response codes
const (
	CodeMany       Code = "many"
	CodeExists     Code = "exists"
	CodeAdd        Code = "add"
	CodeUpdate     Code = "update"
	CodeNotFound   Code = "notfound"
	CodeDelete     Code = "delete"
	CodeJSONDecode Code = "jsondecode"
	CodeJSONError  Code = "jsonerror"
	CodeBadHTTP    Code = "badhttp"
	CodeNotAllowed Code = "notallowed"
	CodeNoKey      Code = "nokey"

	// CodeInternal is optional; without it the fixed 500 response is used
	CodeInternal Code = "internal"
)

// KnownCodes lists the codes the server can produce that a catalog should define
var KnownCodes = []Code{
	CodeMany, CodeExists, CodeAdd, CodeUpdate, CodeNotFound, CodeDelete,
	CodeJSONDecode, CodeJSONError, CodeBadHTTP, CodeNotAllowed, CodeNoKey,
}

// Fallback response for codes missing from the catalog
const (
	InternalErrorStatus = "HTTP/1.1 500 Internal Server Error"
	InternalErrorBody   = `{"error":{"type":500,"message":"Internal Server error"}}`
)

// ErrInvalidTemplate indicates a catalog entry cannot be rendered
var ErrInvalidTemplate = errors.New("invalid response template")

// Template is one catalog entry: a literal status line and a JSON body
type Template struct {
	StatusLine string          `json:"http_answer"`
	Body       json.RawMessage `json:"json_message"`
}

// Catalog maps codes to pre-rendered responses
type Catalog struct {
	templates map[Code]Template
	rendered  map[Code][]byte
	fallback  []byte
}

// NewCatalog validates templates and renders each of them once
func NewCatalog(templates map[string]Template) (*Catalog, error) {
	c := &Catalog{
		templates: make(map[Code]Template, len(templates)),
		rendered:  make(map[Code][]byte, len(templates)),
		fallback:  FormatResponse(InternalErrorStatus, []byte(InternalErrorBody)),
	}

	for name, tpl := range templates {
		if tpl.StatusLine == "" {
			return nil, fmt.Errorf("%w: %q has no http_answer", ErrInvalidTemplate, name)
		}

		body := []byte("null")
		if len(tpl.Body) > 0 {
			var buf bytes.Buffer
			if err := json.Compact(&buf, tpl.Body); err != nil {
				return nil, fmt.Errorf("%w: %q json_message: %v", ErrInvalidTemplate, name, err)
			}
			body = buf.Bytes()
		}

		code := Code(name)
		c.templates[code] = Template{StatusLine: tpl.StatusLine, Body: body}
		c.rendered[code] = FormatResponse(tpl.StatusLine, body)
	}

	return c, nil
}

// Lookup returns the template for code
func (c *Catalog) Lookup(code Code) (Template, bool) {
	tpl, ok := c.templates[code]
	return tpl, ok
}

// Render returns the full response for code. Unknown codes render the
// fixed 500 response and report false.
func (c *Catalog) Render(code Code) ([]byte, bool) {
	if resp, ok := c.rendered[code]; ok {
		return resp, true
	}
	return c.fallback, false
}

// Missing returns the well-known codes the catalog does not define, sorted
func (c *Catalog) Missing() []string {
	var missing []string
	for _, code := range KnownCodes {
		if _, ok := c.templates[code]; !ok {
			missing = append(missing, string(code))
		}
	}
	sort.Strings(missing)
	return missing
}

// Len returns the number of templates
func (c *Catalog) Len() int {
	return len(c.templates)
}
