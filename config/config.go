package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Required setting keys
const (
	KeyHost       = "server_host"
	KeyPort       = "server_port"
	KeyChunkSize  = "server_bytes_recv"
	KeyMaxClients = "server_max_clients"
	KeyBaseRoot   = "server_base_root"
)

// Optional setting keys
const (
	KeyReadTimeout     = "server_read_timeout"
	KeyPollInterval    = "server_poll_interval"
	KeyStorageBackend  = "storage_backend"
	KeyRedisAddr       = "storage_redis_addr"
	KeyRedisPassword   = "storage_redis_password"
	KeyRedisDB         = "storage_redis_db"
	KeyRedisPrefix     = "storage_redis_prefix"
	KeySQLitePath      = "storage_sqlite_path"
	KeyLuaScript       = "storage_lua_script"
	KeyAuditLogPath    = "audit_log_path"
	KeyAuditRotateSize = "audit_rotate_size"
	KeyAuditCompress   = "audit_compress"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
)

// RequiredKeys lists the keys every settings file must define
var RequiredKeys = []string{KeyHost, KeyPort, KeyChunkSize, KeyMaxClients, KeyBaseRoot}

// Defaults for optional settings
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultRedisAddr    = "localhost:6379"
	DefaultSQLitePath   = "storage.db"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Common errors for settings loading.
var (
	ErrFileNotFound   = errors.New("configuration file not found")
	ErrEmptyFile      = errors.New("configuration file is empty")
	ErrMalformedLine  = errors.New("line is not a key value pair")
	ErrMissingKey     = errors.New("required key missing")
	ErrInvalidValue   = errors.New("invalid value")
	ErrInvalidCatalog = errors.New("invalid response catalog")
)

// ConfigError reports the file, line and key a settings failure came from
type ConfigError struct {
	Path string
	Line int
	Key  string
	Err  error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, ": %s", e.Key)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Settings is the immutable server configuration
type Settings struct {
	Host       string
	Port       int
	ChunkSize  int
	MaxClients int
	BaseRoot   string

	// ReadTimeout is zero when reads may block indefinitely
	ReadTimeout  time.Duration
	PollInterval time.Duration

	StorageBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	SQLitePath     string
	LuaScript      string

	AuditLogPath    string
	AuditRotateSize uint64
	AuditCompress   bool

	LogLevel  string
	LogFormat string

	raw map[string]string
}

// Addr returns host:port for the listener
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Value returns the raw text of any key in the file, including unknown ones
func (s *Settings) Value(key string) (string, bool) {
	v, ok := s.raw[key]
	return v, ok
}

// Load reads a settings file of whitespace-separated "key value" lines.
// Blank lines and lines starting with '#' are skipped; the first occurrence
// of a key wins.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{Path: path, Err: ErrFileNotFound}
		}
		return nil, &ConfigError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse builds settings from file contents; path is used in errors only
func Parse(path string, data []byte) (*Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Path: path, Err: ErrEmptyFile}
	}
	raw, err := parseLines(path, data)
	if err != nil {
		return nil, err
	}
	return fromMap(path, raw)
}

func parseLines(path string, data []byte) (map[string]string, error) {
	raw := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: ErrMalformedLine}
		}
		if _, seen := raw[fields[0]]; !seen {
			raw[fields[0]] = fields[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return raw, nil
}

func fromMap(path string, raw map[string]string) (*Settings, error) {
	for _, key := range RequiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, &ConfigError{Path: path, Key: key, Err: ErrMissingKey}
		}
	}

	s := &Settings{
		Host:           raw[KeyHost],
		BaseRoot:       raw[KeyBaseRoot],
		PollInterval:   DefaultPollInterval,
		StorageBackend: raw[KeyStorageBackend],
		RedisAddr:      DefaultRedisAddr,
		RedisPassword:  raw[KeyRedisPassword],
		RedisPrefix:    raw[KeyRedisPrefix],
		SQLitePath:     DefaultSQLitePath,
		LuaScript:      raw[KeyLuaScript],
		AuditLogPath:   raw[KeyAuditLogPath],
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		raw:            raw,
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{KeyPort, &s.Port, 0},
		{KeyChunkSize, &s.ChunkSize, 1},
		{KeyMaxClients, &s.MaxClients, 0},
	}
	for _, f := range ints {
		n, err := strconv.Atoi(raw[f.key])
		if err != nil || n < f.min {
			return nil, &ConfigError{Path: path, Key: f.key, Err: fmt.Errorf("%w: %q", ErrInvalidValue, raw[f.key])}
		}
		*f.dst = n
	}
	if s.Port > 65535 {
		return nil, &ConfigError{Path: path, Key: KeyPort, Err: fmt.Errorf("%w: port %d is out of range", ErrInvalidValue, s.Port)}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{KeyReadTimeout, &s.ReadTimeout},
		{KeyPollInterval, &s.PollInterval},
	}
	for _, f := range durations {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, &ConfigError{Path: path, Key: f.key, Err: fmt.Errorf("%w: %q", ErrInvalidValue, v)}
		}
		*f.dst = d
	}

	if v, ok := raw[KeyRedisAddr]; ok {
		s.RedisAddr = v
	}
	if v, ok := raw[KeyRedisDB]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ConfigError{Path: path, Key: KeyRedisDB, Err: fmt.Errorf("%w: %q", ErrInvalidValue, v)}
		}
		s.RedisDB = n
	}
	if v, ok := raw[KeySQLitePath]; ok {
		s.SQLitePath = v
	}
	if v, ok := raw[KeyAuditRotateSize]; ok {
		size, err := humanize.ParseBytes(v)
		if err != nil {
			return nil, &ConfigError{Path: path, Key: KeyAuditRotateSize, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
		}
		s.AuditRotateSize = size
	}
	if v, ok := raw[KeyAuditCompress]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ConfigError{Path: path, Key: KeyAuditCompress, Err: fmt.Errorf("%w: %q", ErrInvalidValue, v)}
		}
		s.AuditCompress = b
	}
	if v, ok := raw[KeyLogLevel]; ok {
		s.LogLevel = v
	}
	if v, ok := raw[KeyLogFormat]; ok {
		s.LogFormat = v
	}

	return s, nil
}

// DefaultPaths returns etc/storage.conf and etc/messages.json next to the
// running executable.
func DefaultPaths() (settings, catalog string) {
	dir := "."
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Dir(exe)
	}
	return filepath.Join(dir, "etc", "storage.conf"), filepath.Join(dir, "etc", "messages.json")
}
