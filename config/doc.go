// Package config loads the server settings file and the response catalog.
//
// The settings file holds one whitespace-separated "key value" pair per
// line:
//
//	server_host         0.0.0.0
//	server_port         8080
//	server_bytes_recv   1
//	server_max_clients  100
//	server_base_root    storage
//
// The catalog maps response codes to a status line and a JSON body, in JSON
// or YAML:
//
//	{"add": {"http_answer": "HTTP/1.1 201 Created", "json_message": {"message": "added"}}}
//
// Every loading failure is returned as a *ConfigError wrapping one of the
// package's sentinel errors.
package config
