// Package audit provides the append-only event log of storage operations.
//
// FileLogger writes one line per event:
//
//	[10/14/2026 09:30:00] [info] [127.0.0.1] key = user added
//
// and can rotate the file at a size threshold, optionally zipping the
// rotated copy. NopLogger discards everything.
package audit
