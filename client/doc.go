// Package client speaks the storage-http wire protocol: one request per TCP
// connection, the write side half-closed after sending, the reply read until
// its Content-Length is satisfied.
package client
