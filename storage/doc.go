// Package storage provides the key/value backends behind the storage server.
//
// Every backend implements Backend, a deliberately small capability set:
//
//	exists, add, update, get, delete
//
// Basic usage:
//
//	s := storage.NewMemory()
//	defer s.Close()
//
//	if ok, _ := s.Exists(ctx, "user"); !ok {
//		_ = s.Add(ctx, "user", `{"name":"ann"}`)
//	}
//	value, found, err := s.Get(ctx, "user")
//
// The package supports:
//   - Sharded in-memory storage (xxhash shard selection)
//   - Redis via github.com/redis/go-redis
//   - SQLite via modernc.org/sqlite
//
// A Lua script backend lives in the lua package.
package storage
