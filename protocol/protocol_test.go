package protocol_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/raniellyferreira/storage-http/protocol"
)

func TestReaderHeaderLines(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		chunkSize int
		expected  []string
	}{
		{
			name:      "request line only",
			input:     "GET /storage/k HTTP/1.1\r\n\r\n",
			chunkSize: 1,
			expected:  []string{"GET /storage/k HTTP/1.1"},
		},
		{
			name:      "request with headers",
			input:     "POST /storage HTTP/1.1\r\nHost: localhost\r\nContent-Length: 2\r\n\r\n{}",
			chunkSize: 1,
			expected:  []string{"POST /storage HTTP/1.1", "Host: localhost", "Content-Length: 2"},
		},
		{
			name:      "large chunks",
			input:     "GET /storage/k HTTP/1.1\r\nAccept: */*\r\n\r\n",
			chunkSize: 1024,
			expected:  []string{"GET /storage/k HTTP/1.1", "Accept: */*"},
		},
		{
			name:      "peer closes without terminator",
			input:     "GET /storage/k HTTP/1.1\r\nAccept: */*\r\n",
			chunkSize: 4,
			expected:  []string{"GET /storage/k HTTP/1.1", "Accept: */*"},
		},
		{
			name:      "unterminated tail is discarded",
			input:     "GET / HTTP/1.1\r\nHost",
			chunkSize: 1,
			expected:  []string{"GET / HTTP/1.1"},
		},
		{
			name:      "short header line after peek",
			input:     "GET / HTTP/1.1\r\nA:1\r\n\r\n",
			chunkSize: 1,
			expected:  []string{"GET / HTTP/1.1", "A:1"},
		},
		{
			name:      "bare line feeds up to close",
			input:     "GET /storage/k HTTP/1.1\nHost: x\n\n",
			chunkSize: 1,
			expected:  []string{"GET /storage/k HTTP/1.1", "Host: x"},
		},
		{
			name:      "bare line feeds with large chunks",
			input:     "GET /storage/k HTTP/1.1\nHost: x\nAccept: */*\n\n",
			chunkSize: 512,
			expected:  []string{"GET /storage/k HTTP/1.1", "Host: x", "Accept: */*"},
		},
		{
			name:      "bare line feeds before crlf terminator",
			input:     "GET /storage/k HTTP/1.1\nHost: x\n\r\n",
			chunkSize: 3,
			expected:  []string{"GET /storage/k HTTP/1.1", "Host: x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := protocol.NewReader(strings.NewReader(tt.input), tt.chunkSize)
			lines, err := reader.ReadHeaderLines()
			if err != nil {
				t.Fatalf("ReadHeaderLines() error = %v", err)
			}

			if len(lines) != len(tt.expected) {
				t.Fatalf("ReadHeaderLines() = %q, want %q", lines, tt.expected)
			}
			for i := range lines {
				if lines[i] != tt.expected[i] {
					t.Errorf("line[%d] = %q, want %q", i, lines[i], tt.expected[i])
				}
			}
		})
	}
}

func TestReaderEmptyRequest(t *testing.T) {
	inputs := []string{"", "GET / HTTP/1.1", "\r"}

	for _, input := range inputs {
		reader := protocol.NewReader(strings.NewReader(input), 1)
		_, err := reader.ReadHeaderLines()
		if !errors.Is(err, protocol.ErrEmptyRequest) {
			t.Errorf("ReadHeaderLines(%q) error = %v, want ErrEmptyRequest", input, err)
		}
		if !errors.Is(err, protocol.ErrMalformed) {
			t.Errorf("ReadHeaderLines(%q) error does not match ErrMalformed", input)
		}
	}
}

func TestReaderInvalidUTF8(t *testing.T) {
	reader := protocol.NewReader(strings.NewReader("GET /\xff HTTP/1.1\r\n\r\n"), 1)
	_, err := reader.ReadHeaderLines()
	if !errors.Is(err, protocol.ErrInvalidEncoding) {
		t.Fatalf("ReadHeaderLines() error = %v, want ErrInvalidEncoding", err)
	}
}

func TestReaderHeaderTooLarge(t *testing.T) {
	input := "GET / HTTP/1.1\r\nX: " + strings.Repeat("a", 70*1024) + "\r\n\r\n"
	reader := protocol.NewReader(strings.NewReader(input), 4096)
	_, err := reader.ReadHeaderLines()
	if !errors.Is(err, protocol.ErrHeaderTooLarge) {
		t.Fatalf("ReadHeaderLines() error = %v, want ErrHeaderTooLarge", err)
	}
}

func TestReaderTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	reader := protocol.NewReader(iotest.ErrReader(boom), 1)
	_, err := reader.ReadHeaderLines()
	if !errors.Is(err, boom) {
		t.Fatalf("ReadHeaderLines() error = %v, want transport error", err)
	}
	if errors.Is(err, protocol.ErrMalformed) {
		t.Error("transport error must not be classified as malformed")
	}
}

// countingReader records the size of every Read call
type countingReader struct {
	r     io.Reader
	sizes []int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.sizes = append(c.sizes, len(p))
	return c.r.Read(p)
}

func TestReaderChunkSize(t *testing.T) {
	src := &countingReader{r: strings.NewReader("GET / HTTP/1.1\r\n\r\n")}
	reader := protocol.NewReader(src, 3)
	if _, err := reader.ReadHeaderLines(); err != nil {
		t.Fatalf("ReadHeaderLines() error = %v", err)
	}
	for i, size := range src.sizes {
		if size != 3 {
			t.Errorf("read %d used buffer of %d bytes, want 3", i, size)
		}
	}
}

func TestReaderBody(t *testing.T) {
	input := "POST /storage HTTP/1.1\r\nContent-Length: 27\r\n\r\n" + `{"key":"k","value":[1,2,3]}`

	for _, chunkSize := range []int{1, 7, 4096} {
		reader := protocol.NewReader(iotest.HalfReader(strings.NewReader(input)), chunkSize)
		if _, err := reader.ReadHeaderLines(); err != nil {
			t.Fatalf("chunk %d: ReadHeaderLines() error = %v", chunkSize, err)
		}
		body, err := reader.ReadBody(27)
		if err != nil {
			t.Fatalf("chunk %d: ReadBody() error = %v", chunkSize, err)
		}
		if string(body) != `{"key":"k","value":[1,2,3]}` {
			t.Errorf("chunk %d: ReadBody() = %q", chunkSize, body)
		}
	}
}

func TestReaderShortBody(t *testing.T) {
	reader := protocol.NewReader(strings.NewReader("PUT /s/k HTTP/1.1\r\n\r\n{\"va"), 1)
	if _, err := reader.ReadHeaderLines(); err != nil {
		t.Fatalf("ReadHeaderLines() error = %v", err)
	}
	body, err := reader.ReadBody(20)
	if !errors.Is(err, protocol.ErrShortBody) {
		t.Fatalf("ReadBody() error = %v, want ErrShortBody", err)
	}
	if string(body) != `{"va` {
		t.Errorf("ReadBody() = %q, want partial body", body)
	}
}

func TestReaderBodyTooLarge(t *testing.T) {
	reader := protocol.NewReader(strings.NewReader(""), 1)
	if _, err := reader.ReadBody(1 << 30); !errors.Is(err, protocol.ErrBodyTooLarge) {
		t.Fatalf("ReadBody() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestParseHeaders(t *testing.T) {
	lines := []string{
		"DELETE /storage/user HTTP/1.1",
		"Host: localhost:8080",
		"Content-Length: 42",
		"X-Request-Id: abc",
		"X-Retry: 007",
	}

	h, err := protocol.ParseHeaders(lines, "10.0.0.1")
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}

	if h.Method != protocol.MethodDelete {
		t.Errorf("Method = %s, want delete", h.Method)
	}
	if h.URI != "/storage/user" {
		t.Errorf("URI = %s, want /storage/user", h.URI)
	}
	if h.RemoteAddr != "10.0.0.1" {
		t.Errorf("RemoteAddr = %s, want 10.0.0.1", h.RemoteAddr)
	}
	if h.ContentLength != 42 {
		t.Errorf("ContentLength = %d, want 42", h.ContentLength)
	}

	v, ok := h.Get("xrequestid")
	if !ok || v.IsInteger || v.Raw != "abc" {
		t.Errorf("Get(xrequestid) = %+v, %v", v, ok)
	}

	v, ok = h.Get("X-Retry")
	if !ok || !v.IsInteger || v.Integer != 7 {
		t.Errorf("Get(X-Retry) = %+v, %v; want integer 7", v, ok)
	}

	fields := h.Fields()
	expected := []string{"host", "contentlength", "xrequestid", "xretry"}
	if len(fields) != len(expected) {
		t.Fatalf("Fields() length = %d, want %d", len(fields), len(expected))
	}
	for i, name := range expected {
		if fields[i].Name != name {
			t.Errorf("Fields()[%d] = %s, want %s", i, fields[i].Name, name)
		}
	}
}

func TestParseHeadersRepeatedName(t *testing.T) {
	h, err := protocol.ParseHeaders([]string{
		"PUT /s/k HTTP/1.1",
		"Content-Length: 5",
		"Accept: a",
		"content-length: 9",
	}, "")
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}
	if h.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.Len())
	}
	if h.ContentLength != 9 {
		t.Errorf("ContentLength = %d, want 9", h.ContentLength)
	}
	if h.Fields()[0].Name != "contentlength" {
		t.Errorf("repeated header moved to %s", h.Fields()[0].Name)
	}
}

func TestParseHeadersNonNumericContentLength(t *testing.T) {
	h, err := protocol.ParseHeaders([]string{"POST / HTTP/1.1", "Content-Length: ten"}, "")
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}
	if h.ContentLength != -1 {
		t.Errorf("ContentLength = %d, want -1", h.ContentLength)
	}
}

func TestParseHeadersEmptyValue(t *testing.T) {
	h, err := protocol.ParseHeaders([]string{"GET /storage/k HTTP/1.1", "X-A: ", "Accept:", "Content-Length:"}, "")
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}
	for _, name := range []string{"xa", "accept"} {
		v, ok := h.Get(name)
		if !ok || v.Raw != "" || v.IsInteger {
			t.Errorf("Get(%s) = %+v, %v; want empty string", name, v, ok)
		}
	}
	if h.ContentLength != -1 {
		t.Errorf("ContentLength = %d, want -1", h.ContentLength)
	}
}

func TestParseHeadersErrors(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		wantErr error
	}{
		{"no lines", nil, protocol.ErrEmptyRequest},
		{"two tokens", []string{"GET /"}, protocol.ErrBadRequestLine},
		{"one token", []string{"GET"}, protocol.ErrBadRequestLine},
		{"four tokens", []string{"GET / HTTP/1.1 extra"}, protocol.ErrBadRequestLine},
		{"double space", []string{"GET  / HTTP/1.1"}, protocol.ErrBadRequestLine},
		{"header without colon", []string{"GET / HTTP/1.1", "Host localhost"}, protocol.ErrBadHeaderLine},
		{"header without name", []string{"GET / HTTP/1.1", ": x"}, protocol.ErrBadHeaderLine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.ParseHeaders(tt.lines, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseHeaders() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, protocol.ErrMalformed) {
				t.Errorf("error %v does not match ErrMalformed", err)
			}
		})
	}
}

func TestParseErrorLine(t *testing.T) {
	_, err := protocol.ParseHeaders([]string{"GET / HTTP/1.1", "ok: 1", "broken"}, "")
	var perr *protocol.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error %v is not a *ParseError", err)
	}
	if perr.Line != 2 || perr.Text != "broken" {
		t.Errorf("ParseError = line %d %q, want line 2 \"broken\"", perr.Line, perr.Text)
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		uri      string
		expected []string
	}{
		{"/", nil},
		{"", nil},
		{"/storage", []string{"storage"}},
		{"/storage/", []string{"storage"}},
		{"//storage//key/", []string{"storage", "key"}},
		{"/storage/key/extra", []string{"storage", "key", "extra"}},
	}

	for _, tt := range tests {
		h := protocol.NewHeaders("")
		h.URI = tt.uri
		got := h.Segments()
		if len(got) != len(tt.expected) {
			t.Errorf("Segments(%q) = %q, want %q", tt.uri, got, tt.expected)
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("Segments(%q)[%d] = %q, want %q", tt.uri, i, got[i], tt.expected[i])
			}
		}
	}
}

func testCatalog(t *testing.T) *protocol.Catalog {
	t.Helper()
	c, err := protocol.NewCatalog(map[string]protocol.Template{
		"add": {
			StatusLine: "HTTP/1.1 201 Created",
			Body:       json.RawMessage(`{ "message": "added", "type": 201 }`),
		},
		"notfound": {
			StatusLine: "HTTP/1.1 404 Not Found",
			Body:       json.RawMessage(`{"error": {"type": 404, "message": "Not Found"}}`),
		},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

func TestCatalogRender(t *testing.T) {
	c := testCatalog(t)

	resp, ok := c.Render(protocol.CodeAdd)
	if !ok {
		t.Fatal("Render(add) reported a miss")
	}
	body := `{"message":"added","type":201}`
	expected := "HTTP/1.1 201 Created\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 30\r\n" +
		"\r\n" + body
	if string(resp) != expected {
		t.Errorf("Render(add) = %q, want %q", resp, expected)
	}
}

func TestCatalogFallback(t *testing.T) {
	c := testCatalog(t)

	resp, ok := c.Render(protocol.CodeMany)
	if ok {
		t.Fatal("Render(many) should miss")
	}
	if !bytes.HasPrefix(resp, []byte(protocol.InternalErrorStatus+"\r\n")) {
		t.Errorf("fallback status line wrong: %q", resp)
	}
	if !bytes.HasSuffix(resp, []byte(protocol.InternalErrorBody)) {
		t.Errorf("fallback body wrong: %q", resp)
	}
	if !bytes.Contains(resp, []byte("Content-Length: 56\r\n")) {
		t.Errorf("fallback content length wrong: %q", resp)
	}
}

func TestCatalogContentLengthIsBytes(t *testing.T) {
	c, err := protocol.NewCatalog(map[string]protocol.Template{
		"add": {StatusLine: "HTTP/1.1 201 Created", Body: json.RawMessage(`"héllo"`)},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	resp, _ := c.Render(protocol.CodeAdd)
	if !bytes.Contains(resp, []byte("Content-Length: 8\r\n")) {
		t.Errorf("Content-Length should count bytes: %q", resp)
	}
}

func TestCatalogMissing(t *testing.T) {
	c := testCatalog(t)
	missing := c.Missing()
	if len(missing) != len(protocol.KnownCodes)-2 {
		t.Fatalf("Missing() = %v", missing)
	}
	for _, code := range missing {
		if code == "add" || code == "notfound" {
			t.Errorf("Missing() lists defined code %s", code)
		}
	}
}

func TestCatalogInvalidTemplate(t *testing.T) {
	tests := []struct {
		name string
		tpl  protocol.Template
	}{
		{"no status line", protocol.Template{Body: json.RawMessage(`{}`)}},
		{"bad body", protocol.Template{StatusLine: "HTTP/1.1 200 OK", Body: json.RawMessage(`{`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.NewCatalog(map[string]protocol.Template{"add": tt.tpl})
			if !errors.Is(err, protocol.ErrInvalidTemplate) {
				t.Fatalf("NewCatalog() error = %v, want ErrInvalidTemplate", err)
			}
		})
	}
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "json body",
			body:     `{"k":"é"}`,
			expected: "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 10\r\n\r\n{\"k\":\"é\"}",
		},
		{
			name:     "empty body",
			body:     "",
			expected: "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 0\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(protocol.FormatResponse(protocol.StatusOK, []byte(tt.body)))
			if got != tt.expected {
				t.Errorf("FormatResponse() = %q, want %q", got, tt.expected)
			}
			if strings.Contains(got, "Content-Length:  ") {
				t.Error("Content-Length has a double space")
			}
		})
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf, testCatalog(t))

	ok, err := writer.WriteCode(protocol.CodeNotFound)
	if err != nil || !ok {
		t.Fatalf("WriteCode() = %v, %v", ok, err)
	}
	if !strings.HasPrefix(buf.String(), "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("WriteCode() = %q", buf.String())
	}

	buf.Reset()
	if err := writer.WriteJSON(protocol.StatusOK, []byte(`[1,2]`)); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	expected := "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 5\r\n\r\n[1,2]"
	if buf.String() != expected {
		t.Errorf("WriteJSON() = %q, want %q", buf.String(), expected)
	}
}

func TestNewValue(t *testing.T) {
	tests := []struct {
		raw       string
		isInteger bool
		integer   int64
	}{
		{"42", true, 42},
		{"0", true, 0},
		{"-1", false, 0},
		{"4.2", false, 0},
		{"", false, 0},
		{"abc", false, 0},
		{"99999999999999999999", false, 0},
	}

	for _, tt := range tests {
		v := protocol.NewValue(tt.raw)
		if v.IsInteger != tt.isInteger || v.Integer != tt.integer {
			t.Errorf("NewValue(%q) = %+v, want integer=%v (%d)", tt.raw, v, tt.isInteger, tt.integer)
		}
		if v.String() != tt.raw {
			t.Errorf("String() = %q, want %q", v.String(), tt.raw)
		}
	}
}
