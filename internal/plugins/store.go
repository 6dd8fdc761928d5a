// Package plugins implements the plugin lifecycle: durable registry,
// install/uninstall with rollback, enable/disable, and the in-memory
// registry of loaded, executable plugin modules.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"toolgate.dev/cli/internal/core/domain"
)

// Store is the durable record of installed plugins: a single JSON document
// mapping plugin name to PluginRecord. An absent file is an empty registry.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the registry document location.
func (s *Store) Path() string { return s.path }

func (s *Store) load() (map[string]domain.PluginRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]domain.PluginRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin registry: %w", err)
	}

	records := make(map[string]domain.PluginRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("plugin registry %s is corrupt: %w", s.path, err)
	}
	return records, nil
}

// save writes the full document atomically: temp file in the same
// directory, then rename.
func (s *Store) save(records map[string]domain.PluginRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plugin registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".plugins-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write plugin registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp registry file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace plugin registry: %w", err)
	}
	return nil
}

// Get returns the record for name, or a NotFoundError.
func (s *Store) Get(name string) (domain.PluginRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return domain.PluginRecord{}, err
	}
	record, ok := records[name]
	if !ok {
		return domain.PluginRecord{}, domain.NewNotFoundError("plugin %q is not installed", name)
	}
	return record, nil
}

// List returns all records sorted by name.
func (s *Store) List() ([]domain.PluginRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	list := make([]domain.PluginRecord, 0, len(records))
	for _, record := range records {
		list = append(list, record)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// Exists reports whether a record with the given name is present.
func (s *Store) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := records[name]
	return ok, nil
}

// Put inserts or replaces the record keyed by its name.
func (s *Store) Put(record domain.PluginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records[record.Name] = record
	return s.save(records)
}

// Delete removes the record for name, or returns a NotFoundError.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[name]; !ok {
		return domain.NewNotFoundError("plugin %q is not installed", name)
	}
	delete(records, name)
	return s.save(records)
}
