package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/raniellyferreira/storage-http/protocol"
)

// ErrMalformedResponse indicates the server's reply could not be parsed
var ErrMalformedResponse = errors.New("client: malformed response")

// DefaultTimeout bounds one request when the context has no deadline
const DefaultTimeout = 5 * time.Second

// Response is one parsed server reply
type Response struct {
	StatusLine string
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client sends one request per connection to a storage server
type Client struct {
	addr    string
	base    string
	timeout time.Duration
	dialer  net.Dialer
}

// Option configures a Client
type Option func(*Client)

// WithBaseRoot sets the path segment keys live under. Defaults to "storage".
func WithBaseRoot(base string) Option {
	return func(c *Client) {
		c.base = strings.Trim(base, "/")
	}
}

// WithTimeout bounds each request when its context carries no deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for the server at addr
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		base:    "storage",
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add stores value under key. value is marshalled unless it is already a
// json.RawMessage.
func (c *Client) Add(ctx context.Context, key string, value interface{}) (*Response, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}{key, raw})
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, "POST", "/"+c.base, body)
}

// Get fetches the value stored under key. On success Body holds the value.
func (c *Client) Get(ctx context.Context, key string) (*Response, error) {
	return c.Do(ctx, "GET", c.keyPath(key), nil)
}

// Update replaces the value stored under key
func (c *Client) Update(ctx context.Context, key string, value interface{}) (*Response, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(struct {
		Value json.RawMessage `json:"value"`
	}{raw})
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, "PUT", c.keyPath(key), body)
}

// Delete removes key
func (c *Client) Delete(ctx context.Context, key string) (*Response, error) {
	return c.Do(ctx, "DELETE", c.keyPath(key), nil)
}

// Do sends a raw request and reads the whole reply. A body, when given, is
// sent with its Content-Length.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	nc, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", c.addr, err)
	}
	defer nc.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}

	// the server may answer and close before reading, e.g. when over its
	// admission limit; a reply still wins over the write error
	_, writeErr := nc.Write(buildRequest(method, path, c.addr, body))
	if tcp, ok := nc.(*net.TCPConn); ok && writeErr == nil {
		_ = tcp.CloseWrite()
	}

	resp, readErr := readResponse(nc)
	if readErr != nil {
		if writeErr != nil {
			return nil, fmt.Errorf("client: write request: %w", writeErr)
		}
		return nil, readErr
	}
	return resp, nil
}

func (c *Client) keyPath(key string) string {
	return "/" + c.base + "/" + key
}

func marshalValue(value interface{}) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("client: value is not valid JSON")
		}
		return raw, nil
	}
	return json.Marshal(value)
}

func buildRequest(method, path, host string, body []byte) []byte {
	var b strings.Builder
	b.WriteString(method + " " + path + " HTTP/1.1" + protocol.CRLF)
	b.WriteString("Host: " + host + protocol.CRLF)
	if body != nil {
		b.WriteString("Content-Type: application/json" + protocol.CRLF)
		b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + protocol.CRLF)
	}
	b.WriteString(protocol.CRLF)
	b.Write(body)
	return []byte(b.String())
}

func readResponse(r io.Reader) (*Response, error) {
	pr := protocol.NewReader(r, 4096)

	lines, err := pr.ReadHeaderLines()
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyRequest) {
			return nil, fmt.Errorf("%w: connection closed without a reply", ErrMalformedResponse)
		}
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	resp := &Response{
		StatusLine: lines[0],
		Headers:    make(map[string]string, len(lines)-1),
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, lines[0])
	}
	resp.StatusCode, err = strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, lines[0])
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedResponse, line)
		}
		resp.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	length, err := strconv.ParseInt(resp.Headers["content-length"], 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: content length %q", ErrMalformedResponse, resp.Headers["content-length"])
	}
	resp.Body, err = pr.ReadBody(length)
	if err != nil {
		return nil, fmt.Errorf("client: read body: %w", err)
	}
	return resp, nil
}
