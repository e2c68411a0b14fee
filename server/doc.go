// Package server runs the storage protocol on a single-threaded event loop.
//
// One goroutine polls the listening socket and every admitted client socket
// for readiness and runs their handlers to completion, one at a time. The
// listener handler applies the per-second admission limit; a client handler
// frames one request, dispatches it against the storage backend, writes one
// response and closes the connection.
//
// Handlers read from their socket with blocking calls, so a peer that sends
// a partial request holds the loop until it sends more, closes, or the
// configured read timeout expires.
//
//	srv, err := server.New(server.Config{
//		Addr:                 ":8080",
//		BaseRoot:             "storage",
//		MaxRequestsPerSecond: 100,
//		Catalog:              catalog,
//		Backend:              storage.NewMemory(),
//	})
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Stop()
package server
