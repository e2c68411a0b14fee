// Package storagehttp serves a key/value store over a small HTTP-like text
// protocol on raw TCP sockets.
//
// A single event loop multiplexes the listening socket and every client
// socket. Each connection carries exactly one request: the server frames it
// by hand, dispatches it against the storage backend, writes one templated
// response and closes the socket. Connections arriving faster than the
// configured per-second limit are answered with the "many" template and
// dropped.
//
// Basic usage:
//
//	svc, err := storagehttp.New(
//		storagehttp.WithAddr(":8080"),
//		storagehttp.WithCatalogFile("etc/messages.json"),
//		storagehttp.WithBackendKind("sqlite"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	if err := svc.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	_ = svc.Wait()
//
// Requests:
//
//   - POST /<base> with {"key": "...", "value": <json>} adds a key
//   - GET /<base>/<key> returns the stored JSON value
//   - PUT /<base>/<key> with {"value": <json>} replaces a value
//   - DELETE /<base>/<key> removes a key
//
// Backends are an in-memory sharded map, Redis, SQLite or a Lua script; see
// the storage and lua packages. The client package speaks the protocol from
// the other side.
package storagehttp
