// Package specfile reads and writes the key=value spec files that hold persisted
// instrument settings.
//
// A spec file is plain text, one "NAME = value" record per line. Names are case-insensitive.
// Blank lines and lines starting with '#' or "//" are kept verbatim when the file is saved,
// so hand-written comments survive a rewrite.
//
// An EEPROM store is the same format prefixed by a header line and limited to a fixed
// capacity. A store whose header does not match loads as empty.
package specfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	// EEPROMHeader marks a formatted EEPROM image.
	EEPROMHeader = "CPHD01"
	// EEPROMCapacity is the size of the EEPROM device in bytes.
	EEPROMCapacity = 0x1000
)

// ErrCapacityExceeded indicates that the records no longer fit in the EEPROM.
var ErrCapacityExceeded = errors.New("specfile: capacity exceeded")

type record struct {
	line  int
	value string
}

// Store is an in-memory spec file. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	path     string
	header   string
	capacity int
	lines    []string
	records  map[string]record
}

// NewFile returns an empty store backed by the plain file at path.
func NewFile(path string) *Store {
	return &Store{path: path, records: make(map[string]record)}
}

// NewEEPROM returns an empty store backed by an EEPROM image at path. The image starts with
// header and holds at most capacity bytes.
func NewEEPROM(path string, capacity int, header string) *Store {
	if header != "" && !strings.HasSuffix(header, "\n") {
		header += "\n"
	}

	return &Store{path: path, header: header, capacity: capacity, records: make(map[string]record)}
}

// Path returns the backing path.
func (s *Store) Path() string { return s.path }

// Load replaces the records with the content of the backing file.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 && len(data) > s.capacity {
		data = data[:s.capacity]
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}

	s.lines = nil
	s.records = make(map[string]record)

	if s.header != "" {
		if !bytes.HasPrefix(data, []byte(s.header)) {
			return nil
		}
		data = data[len(s.header):]
	}
	s.parse(string(data))

	return nil
}

func (s *Store) parse(text string) {
	if text == "" {
		return
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "\r", "")
		s.lines = append(s.lines, line)

		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}

		name, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		s.records[strings.ToUpper(strings.TrimSpace(name))] = record{
			line:  len(s.lines) - 1,
			value: strings.TrimSpace(value),
		}
	}

	// a trailing newline leaves one empty element behind
	if n := len(s.lines); n > 0 && s.lines[n-1] == "" {
		s.lines = s.lines[:n-1]
	}
}

// Get returns the value of key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[strings.ToUpper(key)]

	return r.value, ok
}

// Bool returns true when key holds "true" (any case) or "1".
func (s *Store) Bool(key string) (value bool, ok bool) {
	str, ok := s.Get(key)
	if !ok {
		return false, false
	}

	return strings.EqualFold(str, "true") || str == "1", true
}

// Int returns key as a signed integer. A value that is not a number reads as 0.
func (s *Store) Int(key string) (int64, bool) {
	str, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, true
	}

	return v, true
}

// Uint32 returns key as an unsigned 32-bit integer. A value that is not a number reads as 0.
func (s *Store) Uint32(key string) (uint32, bool) {
	str, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return 0, true
	}

	return uint32(v), true
}

// Set stores value under key, rewriting the existing line in place. It returns true when
// the key already existed.
func (s *Store) Set(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s = %s", key, value)
	upper := strings.ToUpper(key)

	if r, ok := s.records[upper]; ok {
		s.lines[r.line] = line
		s.records[upper] = record{line: r.line, value: value}

		return true
	}

	s.lines = append(s.lines, line)
	s.records[upper] = record{line: len(s.lines) - 1, value: value}

	return false
}

// SetUint stores an unsigned integer under key.
func (s *Store) SetUint(key string, value uint64) bool {
	return s.Set(key, strconv.FormatUint(value, 10))
}

// Remove deletes key. Its line is blanked so other line positions stay valid.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	upper := strings.ToUpper(key)
	r, ok := s.records[upper]
	if !ok {
		return false
	}
	s.lines[r.line] = ""
	delete(s.records, upper)

	return true
}

// Bytes returns the serialized store, header included. EEPROM images end with a NUL byte.
func (s *Store) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.bytes()
}

func (s *Store) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(s.header)
	for _, line := range s.lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if s.capacity > 0 {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// Save writes the store to its backing file.
func (s *Store) Save() error {
	s.mu.RLock()
	data := s.bytes()
	s.mu.RUnlock()

	if s.capacity > 0 && len(data) > s.capacity {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrCapacityExceeded, len(data), s.capacity)
	}

	return os.WriteFile(s.path, data, 0o644)
}
