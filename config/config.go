// Package config implements the flat key/value configuration file: one
// key=value pair per line, with blank lines and #-comments ignored.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store is a key/value configuration persisted to a text file. It is safe for
// concurrent use.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// Open loads the store at path, creating an empty file if there is none.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	values, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return &Store{
		path:   path,
		values: values,
	}, nil
}

// Parse reads key=value lines.
func Parse(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '='", n)
		}

		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("line %d: empty key", n)
		}
		values[k] = strings.TrimSpace(v)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// Path returns the path of the backing file.
func (s *Store) Path() string {
	return s.path
}

// All returns a copy of every value.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return values
}

// Get returns the value of key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

// Update merges values into the store and writes it back to disk.
func (s *Store) Update(values map[string]string) error {
	for k, v := range values {
		if err := validate(k, v); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]string, len(s.values)+len(values))
	for k, v := range s.values {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}

	if err := write(s.path, merged); err != nil {
		return err
	}
	s.values = merged
	return nil
}

// Defaults adds every missing key of values and writes the store back if
// anything was added, so that the file lists all known settings.
func (s *Store) Defaults(values map[string]string) error {
	s.mu.RLock()
	missing := make(map[string]string)
	for k, v := range values {
		if _, ok := s.values[k]; !ok {
			missing[k] = v
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}
	return s.Update(missing)
}

// String returns the value of key or def.
func (s *Store) String(key, def string) string {
	if v, ok := s.Get(key); ok && v != "" {
		return v
	}
	return def
}

// Int returns the value of key as an integer or def. Values with a fraction
// are truncated.
func (s *Store) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return def
}

// Float returns the value of key as a float or def.
func (s *Store) Float(key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Duration returns the value of key as a duration or def. Plain numbers are
// read as seconds.
func (s *Store) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

func validate(k, v string) error {
	switch {
	case strings.TrimSpace(k) != k || k == "":
		return fmt.Errorf("invalid key %q", k)
	case strings.ContainsAny(k, "=\n\r#"):
		return fmt.Errorf("invalid key %q", k)
	case strings.ContainsAny(v, "\n\r"):
		return fmt.Errorf("invalid value for %q: contains a newline", k)
	}
	return nil
}

func write(path string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, values[k])
	}

	// Write to a temporary file first so that a crash never leaves a
	// truncated config behind.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
