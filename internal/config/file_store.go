package config

import (
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore is a Store backed by a single YAML document: a top-level
// mapping of service name -> property map. Intended for single-writer use
// (local development, the validate-service CLI); concurrent external
// writers are not guarded against, matching the original file-based config.
type FileStore struct {
	path string
	mu   sync.Mutex
	docs map[string]map[string]string
}

// NewFileStore loads the YAML document at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	doc := map[string]map[string]string{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	s.docs = doc
	return nil
}

// Keys returns the known service names in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the ServiceConfig for service, or ErrNotFound.
func (s *FileStore) Get(service string) (*ServiceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.docs[service]
	if !ok {
		return nil, &ErrNotFound{Service: service}
	}
	return NewServiceConfig(service, props), nil
}

// Save merges patch into service's properties and rewrites the file.
// There is no version conflict to retry against in the file-backed store;
// the merge is atomic with respect to s.mu.
func (s *FileStore) Save(service string, patch map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	doc := map[string]map[string]string{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	props, ok := doc[service]
	if !ok {
		return &ErrNotFound{Service: service}
	}
	for k, v := range patch {
		props[k] = v
	}
	doc[service] = props

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, out, 0o600); err != nil {
		return err
	}

	s.docs = doc
	return nil
}

// Validate runs ServiceConfig.Validate for the named service.
func (s *FileStore) Validate(service string) ([]string, error) {
	cfg, err := s.Get(service)
	if err != nil {
		return nil, err
	}
	return cfg.Validate(), nil
}
