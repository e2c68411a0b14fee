// Package lua provides a storage backend implemented by a Lua script.
//
// The script runs inside a gopher-lua interpreter and must define five
// global functions:
//
//	exists(key)        -> boolean
//	add(key, value)    -- must not overwrite an existing key
//	update(key, value)
//	get(key)           -> string or nil
//	delete(key)
//
// An optional count() returning the number of records feeds server stats.
//
// Scripts run with a limited standard library (base, package, table,
// string, math); io, os and debug are not available.
package lua
