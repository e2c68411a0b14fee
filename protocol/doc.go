// Package protocol implements the HTTP-like text protocol spoken by the
// storage server: request framing, header parsing and templated responses.
//
// A request is a request line and header lines terminated by CR LF, a blank
// line, and an optional JSON body sized by Content-Length:
//
//	reader := protocol.NewReader(conn, chunkSize)
//	lines, err := reader.ReadHeaderLines()
//	headers, err := protocol.ParseHeaders(lines, remoteAddr)
//	body, err := reader.ReadBody(headers.ContentLength)
//
// Responses come from a Catalog mapping symbolic codes to a status line
// and JSON body:
//
//	writer := protocol.NewWriter(conn, catalog)
//	writer.WriteCode(protocol.CodeAdd)
//
// The protocol has no keep-alive, pipelining or chunked encoding; every
// connection carries exactly one request and one response.
package protocol
