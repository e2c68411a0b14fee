package lua

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/storage-http/storage"
)

// Functions a storage script must define as globals
var requiredFunctions = []string{"exists", "add", "update", "get", "delete"}

var (
	// ErrMissingFunction indicates the script does not define a required global function
	ErrMissingFunction = errors.New("lua: script is missing a required function")

	// ErrClosed indicates the backend has been closed
	ErrClosed = errors.New("lua: backend is closed")
)

// DefaultScript keeps records in a Lua table
const DefaultScript = `
local records = {}

function exists(key)
	return records[key] ~= nil
end

function add(key, value)
	if records[key] == nil then
		records[key] = value
	end
end

function update(key, value)
	records[key] = value
end

function get(key)
	return records[key]
end

function delete(key)
	records[key] = nil
end

function count()
	local n = 0
	for _ in pairs(records) do
		n = n + 1
	end
	return n
end
`

// Backend is a storage.Backend whose operations are implemented by a Lua
// script. A single interpreter state is shared, guarded by a mutex.
type Backend struct {
	mu     sync.Mutex
	state  *lua.LState
	sha    string
	closed bool
}

// NewBackend compiles and runs script, then checks the required functions exist
func NewBackend(script string) (*Backend, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := openSafeLibs(L); err != nil {
		L.Close()
		return nil, err
	}

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua: script execution error: %w", err)
	}

	for _, name := range requiredFunctions {
		if _, ok := L.GetGlobal(name).(*lua.LFunction); !ok {
			L.Close()
			return nil, fmt.Errorf("%w: %s", ErrMissingFunction, name)
		}
	}

	return &Backend{
		state: L,
		sha:   fmt.Sprintf("%x", sha1.Sum([]byte(script))),
	}, nil
}

// LoadBackend reads a script from path. An empty path selects DefaultScript.
func LoadBackend(path string) (*Backend, error) {
	if path == "" {
		return NewBackend(DefaultScript)
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lua: read script: %w", err)
	}
	return NewBackend(string(script))
}

// openSafeLibs opens the subset of the standard library scripts may use.
// io, os and debug stay closed.
func openSafeLibs(L *lua.LState) error {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			return fmt.Errorf("lua: open %s: %w", lib.name, err)
		}
	}
	return nil
}

// SHA returns the SHA1 of the loaded script
func (b *Backend) SHA() string {
	return b.sha
}

// call invokes the named global with args and returns its first result
func (b *Backend) call(ctx context.Context, name string, args ...lua.LValue) (lua.LValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return lua.LNil, ErrClosed
	}

	fn, ok := b.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return lua.LNil, fmt.Errorf("%w: %s", ErrMissingFunction, name)
	}

	if ctx != nil {
		b.state.SetContext(ctx)
		defer b.state.RemoveContext()
	}

	if err := b.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, fmt.Errorf("lua: %s: %w", name, err)
	}
	ret := b.state.Get(-1)
	b.state.Pop(1)
	return ret, nil
}

// Exists reports whether key is stored
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	ret, err := b.call(ctx, "exists", lua.LString(key))
	if err != nil {
		return false, err
	}
	return lua.LVAsBool(ret), nil
}

// Add stores value under key unless the key is already present
func (b *Backend) Add(ctx context.Context, key, value string) error {
	_, err := b.call(ctx, "add", lua.LString(key), lua.LString(value))
	return err
}

// Update overwrites the value under key
func (b *Backend) Update(ctx context.Context, key, value string) error {
	_, err := b.call(ctx, "update", lua.LString(key), lua.LString(value))
	return err
}

// Get retrieves the value stored under key. nil and false mean absent.
func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	ret, err := b.call(ctx, "get", lua.LString(key))
	if err != nil {
		return "", false, err
	}
	switch v := ret.(type) {
	case *lua.LNilType:
		return "", false, nil
	case lua.LBool:
		if !bool(v) {
			return "", false, nil
		}
		return "true", true, nil
	case lua.LString:
		return string(v), true, nil
	default:
		return ret.String(), true, nil
	}
}

// Delete removes key
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.call(ctx, "delete", lua.LString(key))
	return err
}

// KeyCount calls the optional count() function; scripts without it report -1
func (b *Backend) KeyCount(ctx context.Context) (int64, error) {
	b.mu.Lock()
	_, ok := b.state.GetGlobal("count").(*lua.LFunction)
	b.mu.Unlock()
	if !ok {
		return -1, nil
	}

	ret, err := b.call(ctx, "count")
	if err != nil {
		return 0, err
	}
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("lua: count returned %s, want number", ret.Type())
	}
	return int64(n), nil
}

// Close shuts the interpreter down
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.state.Close()
	return nil
}

var _ storage.Backend = (*Backend)(nil)
var _ storage.KeyCounter = (*Backend)(nil)
