package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/raniellyferreira/storage-http/audit"
	"github.com/raniellyferreira/storage-http/protocol"
	"github.com/raniellyferreira/storage-http/storage"
)

// BodyReader supplies a request body of a declared length
type BodyReader interface {
	ReadBody(n int64) ([]byte, error)
}

// Response is the outcome of one request. Status and Body are set only for
// responses that bypass the catalog.
type Response struct {
	Code   protocol.Code
	Status string
	Body   []byte
}

func codeResponse(code protocol.Code) Response {
	return Response{Code: code}
}

// errDecode and errFormat classify body failures
var (
	errDecode = errors.New("json decode error")
	errFormat = errors.New("json format error")
)

// Dispatcher routes parsed requests to the storage backend
type Dispatcher struct {
	base    string
	backend storage.Backend
	audit   audit.Logger
	logger  Logger
}

// NewDispatcher creates a dispatcher serving keys under /base/
func NewDispatcher(base string, backend storage.Backend, auditLog audit.Logger, logger Logger) *Dispatcher {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Dispatcher{
		base:    base,
		backend: backend,
		audit:   auditLog,
		logger:  logger,
	}
}

// Dispatch executes one request. A non-nil error is a transport failure
// while reading the body; the connection should be closed without a response.
func (d *Dispatcher) Dispatch(ctx context.Context, h *protocol.Headers, body BodyReader) (Response, error) {
	segments := h.Segments()
	if len(segments) == 0 {
		segments = []string{d.base}
	}

	switch h.Method {
	case protocol.MethodPost:
		if segments[0] != d.base {
			return d.notFoundPath(h), nil
		}
		return d.post(ctx, h, body)

	case protocol.MethodGet, protocol.MethodPut, protocol.MethodDelete:
		if segments[0] != d.base {
			return d.notFoundPath(h), nil
		}
		if len(segments) < 2 {
			d.record(h, audit.TypeWarning, fmt.Sprintf("[%s] [%s] forgot enter a key", h.RemoteAddr, h.URI))
			return codeResponse(protocol.CodeNoKey), nil
		}
		key := segments[1]
		switch h.Method {
		case protocol.MethodGet:
			return d.get(ctx, h, key), nil
		case protocol.MethodPut:
			return d.put(ctx, h, key, body)
		default:
			return d.delete(ctx, h, key), nil
		}

	default:
		d.logger.Info("method not allowed", "remote", h.RemoteAddr, "method", h.Method)
		return codeResponse(protocol.CodeNotAllowed), nil
	}
}

func (d *Dispatcher) notFoundPath(h *protocol.Headers) Response {
	d.record(h, audit.TypeWarning, fmt.Sprintf("[%s] [%s] Not Found", h.RemoteAddr, h.URI))
	return codeResponse(protocol.CodeNotFound)
}

func (d *Dispatcher) post(ctx context.Context, h *protocol.Headers, body BodyReader) (Response, error) {
	payload, resp, err := d.readPayload(h, body)
	if err != nil || payload == nil {
		return resp, err
	}

	rawKey, ok := payload["key"]
	if !ok {
		return d.formatError(h), nil
	}
	var key string
	if err := json.Unmarshal(rawKey, &key); err != nil || key == "" {
		return d.formatError(h), nil
	}
	value, ok := compactValue(payload)
	if !ok {
		return d.formatError(h), nil
	}

	exists, err := d.backend.Exists(ctx, key)
	if err != nil {
		return d.backendError(h, key, err), nil
	}
	if exists {
		d.record(h, audit.TypeWarning, keyMessage(h, key, "exists"))
		return codeResponse(protocol.CodeExists), nil
	}

	if err := d.backend.Add(ctx, key, value); err != nil {
		return d.backendError(h, key, err), nil
	}
	d.record(h, audit.TypeInfo, keyMessage(h, key, "added"))
	return codeResponse(protocol.CodeAdd), nil
}

func (d *Dispatcher) put(ctx context.Context, h *protocol.Headers, key string, body BodyReader) (Response, error) {
	payload, resp, err := d.readPayload(h, body)
	if err != nil || payload == nil {
		return resp, err
	}

	value, ok := compactValue(payload)
	if !ok {
		return d.formatError(h), nil
	}

	exists, err := d.backend.Exists(ctx, key)
	if err != nil {
		return d.backendError(h, key, err), nil
	}
	if !exists {
		d.record(h, audit.TypeWarning, keyMessage(h, key, "not found"))
		return codeResponse(protocol.CodeNotFound), nil
	}

	if err := d.backend.Update(ctx, key, value); err != nil {
		return d.backendError(h, key, err), nil
	}
	d.record(h, audit.TypeInfo, keyMessage(h, key, "updated"))
	return codeResponse(protocol.CodeUpdate), nil
}

func (d *Dispatcher) get(ctx context.Context, h *protocol.Headers, key string) Response {
	value, ok, err := d.backend.Get(ctx, key)
	if err != nil {
		return d.backendError(h, key, err)
	}
	if !ok {
		d.logger.Info(keyMessage(h, key, "not found"))
		return codeResponse(protocol.CodeNotFound)
	}
	return Response{Status: protocol.StatusOK, Body: []byte(value)}
}

func (d *Dispatcher) delete(ctx context.Context, h *protocol.Headers, key string) Response {
	exists, err := d.backend.Exists(ctx, key)
	if err != nil {
		return d.backendError(h, key, err)
	}
	if !exists {
		d.record(h, audit.TypeWarning, keyMessage(h, key, "not found"))
		return codeResponse(protocol.CodeNotFound)
	}

	if err := d.backend.Delete(ctx, key); err != nil {
		return d.backendError(h, key, err)
	}
	d.record(h, audit.TypeInfo, keyMessage(h, key, "deleted"))
	return codeResponse(protocol.CodeDelete)
}

// readPayload reads the declared body and decodes it as a JSON object. On
// failure payload is nil and resp holds the error response.
func (d *Dispatcher) readPayload(h *protocol.Headers, body BodyReader) (map[string]json.RawMessage, Response, error) {
	if h.ContentLength < 0 {
		d.record(h, audit.TypeError, fmt.Sprintf("[%s] bad request", h.RemoteAddr))
		return nil, codeResponse(protocol.CodeBadHTTP), nil
	}

	raw, err := body.ReadBody(h.ContentLength)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrShortBody):
		return nil, d.decodeError(h), nil
	case errors.Is(err, protocol.ErrMalformed):
		d.record(h, audit.TypeError, fmt.Sprintf("[%s] bad request", h.RemoteAddr))
		return nil, codeResponse(protocol.CodeBadHTTP), nil
	default:
		return nil, Response{}, err
	}

	payload, err := decodeObject(raw)
	switch {
	case errors.Is(err, errDecode):
		return nil, d.decodeError(h), nil
	case err != nil:
		return nil, d.formatError(h), nil
	}
	return payload, Response{}, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	if !utf8.Valid(raw) {
		return nil, errDecode
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", errFormat, err)
		}
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if payload == nil {
		// a literal null
		return nil, errFormat
	}
	return payload, nil
}

// compactValue re-encodes the "value" member, preserving member order and
// number spelling
func compactValue(payload map[string]json.RawMessage) (string, bool) {
	raw, ok := payload["value"]
	if !ok {
		return "", false
	}
	if len(raw) == 0 {
		return "null", true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	return buf.String(), true
}

func (d *Dispatcher) decodeError(h *protocol.Headers) Response {
	d.record(h, audit.TypeError, fmt.Sprintf("[%s] Json decode error", h.RemoteAddr))
	return codeResponse(protocol.CodeJSONDecode)
}

func (d *Dispatcher) formatError(h *protocol.Headers) Response {
	d.record(h, audit.TypeError, fmt.Sprintf("[%s] Json format error", h.RemoteAddr))
	return codeResponse(protocol.CodeJSONError)
}

func (d *Dispatcher) backendError(h *protocol.Headers, key string, err error) Response {
	d.logger.Error("storage backend failed", "remote", h.RemoteAddr, "method", h.Method, "key", key, "error", err)
	d.writeAudit(audit.TypeError, fmt.Sprintf("[%s] key = %s storage error: %v", h.RemoteAddr, key, err))
	return codeResponse(protocol.CodeInternal)
}

func keyMessage(h *protocol.Headers, key, outcome string) string {
	return fmt.Sprintf("[%s] key = %s %s", h.RemoteAddr, key, outcome)
}

// record logs an outcome and audits it for the methods that change state
func (d *Dispatcher) record(h *protocol.Headers, eventType, message string) {
	if eventType == audit.TypeError {
		d.logger.Error(message)
	} else {
		d.logger.Info(message)
	}

	switch h.Method {
	case protocol.MethodPost, protocol.MethodPut, protocol.MethodDelete:
		d.writeAudit(eventType, message)
	}
}

func (d *Dispatcher) writeAudit(eventType, message string) {
	if err := d.audit.Write(eventType, message); err != nil {
		d.logger.Error("audit write failed", "error", err)
	}
}
