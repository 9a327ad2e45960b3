package properties

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/loykin/craftvisor/internal/fsutil"
)

// FileName is the conventional name of the properties file inside the server directory.
const FileName = "server.properties"

const header = "#Minecraft server properties"

// ErrInvalidEntry rejects pairs that would not read back as the same single line.
var ErrInvalidEntry = errors.New("properties: invalid entry")

// CheckEntry reports whether key=value can be written as one line. Keys must be
// non-blank without '=' or line breaks; values must not contain line breaks.
func CheckEntry(key, value string) error {
	switch {
	case strings.TrimSpace(key) == "", strings.ContainsAny(key, "=\r\n"):
		return fmt.Errorf("%w: key %q", ErrInvalidEntry, key)
	case strings.ContainsAny(value, "\r\n"):
		return fmt.Errorf("%w: value of %q contains a line break", ErrInvalidEntry, key)
	}
	return nil
}

// Map is an insertion-ordered key/value mapping. Order carries no meaning for the
// server but is kept so that writes are deterministic.
type Map struct {
	keys   []string
	values map[string]string
}

func NewMap() *Map { return &Map{values: make(map[string]string)} }

// FromMap builds a Map from a plain map with keys sorted for stable output.
func FromMap(m map[string]string) *Map {
	out := NewMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out.Set(k, m[k])
	}
	return out
}

func (m *Map) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set inserts or replaces key. Replacing keeps the original position.
func (m *Map) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *Map) Keys() []string { return append([]string(nil), m.keys...) }

func (m *Map) Len() int { return len(m.keys) }

func (m *Map) ToMap() map[string]string {
	out := make(map[string]string, len(m.keys))
	for _, k := range m.keys {
		out[k] = m.values[k]
	}
	return out
}

// Store reads and writes a flat key=value file.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Read parses the file. Any failure yields an empty Map.
func (s *Store) Read() *Map {
	m := NewMap()
	f, err := os.Open(filepath.Clean(s.path))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("properties read failed", "path", s.path, "error", err)
		}
		return m
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		k, v, ok := parseLine(sc.Text())
		if ok {
			m.Set(k, v)
		}
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("properties parse failed", "path", s.path, "error", err)
		return NewMap()
	}
	return m
}

func parseLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	k, v, _ := strings.Cut(line, "=")
	k = strings.TrimSpace(k)
	if k == "" {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

// Write replaces the whole file with a generated header followed by m in order.
// Nothing is written when any entry fails CheckEntry.
func (s *Store) Write(m *Map) error {
	if m != nil {
		for _, k := range m.keys {
			if err := CheckEntry(k, m.values[k]); err != nil {
				return err
			}
		}
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	b.WriteString("#" + s.now().Format(time.UnixDate))
	b.WriteByte('\n')
	if m != nil {
		for _, k := range m.keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(m.values[k])
			b.WriteByte('\n')
		}
	}
	if err := fsutil.WriteFileAtomic(s.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write properties: %w", err)
	}
	return nil
}

// Update performs a read-modify-write cycle.
func (s *Store) Update(fn func(*Map)) error {
	m := s.Read()
	fn(m)
	return s.Write(m)
}
