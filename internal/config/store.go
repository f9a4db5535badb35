package config

import "fmt"

// ErrNotFound is returned by Store.Get when the service is unknown.
type ErrNotFound struct {
	Service string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("service %q not found", e.Service)
}

// ErrConflict is returned by Store.Save once the retry budget is exhausted.
type ErrConflict struct {
	Service  string
	Attempts int
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("save conflict for service %q after %d attempts", e.Service, e.Attempts)
}

// maxSaveAttempts bounds the optimistic-concurrency retry loop in Save.
const maxSaveAttempts = 10

// Store is the ConfigStore: a mapping from service name to ServiceConfig,
// backed by either a single-writer file or a multi-writer cluster-managed
// document.
type Store interface {
	// Keys returns the known service names.
	Keys() []string

	// Get returns the current ServiceConfig for a service, or ErrNotFound.
	Get(service string) (*ServiceConfig, error)

	// Save merges patch into the service's properties and persists it.
	// Implementations that can observe a version conflict must retry the
	// reload-merge-write cycle up to maxSaveAttempts before returning
	// ErrConflict; there are no partial writes.
	Save(service string, patch map[string]string) error

	// Validate runs ServiceConfig.Validate for the named service.
	Validate(service string) ([]string, error)
}
