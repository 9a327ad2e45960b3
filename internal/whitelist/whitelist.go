package whitelist

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loykin/craftvisor/internal/fsutil"
)

// FileName is the allow-list file the server reads from its working directory.
const FileName = "whitelist.json"

// placeholderPrefix makes entry identifiers UUID-shaped. Offline-mode servers do
// not resolve them, so the suffix is random hex rather than a real v4 UUID.
const placeholderPrefix = "00000000-0000-0000-0000-"

var ErrInvalidName = errors.New("whitelist: player name required")

// Entry is one allow-list record in the server's on-disk shape.
type Entry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Console is the live server the store keeps in sync while it is online.
type Console interface {
	Online() bool
	SendCommand(cmd string) error
}

type Store struct {
	mu      sync.Mutex
	path    string
	console Console
	logger  *slog.Logger
}

func New(path string, console Console, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, console: console, logger: logger}
}

func (s *Store) Path() string { return s.path }

// Read loads the persisted entries. A missing or unparsable file reads as empty.
func (s *Store) Read() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() []Entry {
	b, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("whitelist read failed", "path", s.path, "error", err)
		}
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		s.logger.Warn("whitelist parse failed", "path", s.path, "error", err)
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// Add appends name unless an entry with the same name (any case) exists.
// It reports whether an entry was added.
func (s *Store) Add(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readLocked()
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return false, nil
		}
	}
	id, err := placeholderUUID()
	if err != nil {
		return false, fmt.Errorf("whitelist: generate id: %w", err)
	}
	entries = append(entries, Entry{UUID: id, Name: name})

	online := s.online()
	if online {
		s.send("whitelist add " + name)
	}
	if err := s.persistLocked(entries); err != nil {
		return false, err
	}
	if online {
		s.send("whitelist reload")
	}
	return true, nil
}

// Remove drops every entry whose name matches (any case). Removing an unknown
// name still rewrites the unchanged list.
func (s *Store) Remove(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readLocked()
	kept := entries[:0]
	for _, e := range entries {
		if !strings.EqualFold(e.Name, name) {
			kept = append(kept, e)
		}
	}

	online := s.online()
	if online {
		s.send("whitelist remove " + name)
	}
	if err := s.persistLocked(kept); err != nil {
		return err
	}
	if online {
		s.send("whitelist reload")
	}
	return nil
}

func (s *Store) persistLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("whitelist: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("whitelist: write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) online() bool {
	return s.console != nil && s.console.Online()
}

// send is fire-and-forget; the server gives no acknowledgement to wait for.
func (s *Store) send(cmd string) {
	if err := s.console.SendCommand(cmd); err != nil {
		s.logger.Warn("whitelist live sync failed", "command", cmd, "error", err)
	}
}

func placeholderUUID() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return placeholderPrefix + hex.EncodeToString(b[:]), nil
}
