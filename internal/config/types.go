// Package config implements the ConfigStore: a versioned, per-service
// property bag with inference rules and optimistic-concurrency retry.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// requiredFields must be present for ServiceConfig.Validate to report no
// errors; an empty value counts as present.
var requiredFields = []string{
	"aws-host",
	"aws-instance",
	"aws-port",
	"readonly-secret-name",
	"readwrite-secret-name",
	"aws-replication-password",
	"aws-replication-username",
	"gcp-auto-storage-increase",
	"gcp-database-version",
	"gcp-disk-type",
	"gcp-instance-cpu",
	"gcp-instance-mem",
	"gcp-instance-region",
	"gcp-instance-storage",
	"gcp-migration-strategy",
	"gcp-project-name",
	"k8s-env",
	"k8s-namespace",
	"k8s-service",
}

// remoteFields are additionally required when gcp-migration-strategy=remote.
var remoteFields = []string{
	"aws-readonly-password",
	"aws-readwrite-password",
}

// StrategyLocal cuts traffic to the target only at promotion time.
const StrategyLocal = "local"

// StrategyRemote keeps traffic on the source during CDC; the app reads both sides.
const StrategyRemote = "remote"

// ValidationError wraps a batch of human-readable configuration errors.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(e.Errors, "; "))
}

// ServiceConfig is an ordered, schema-lax property bag for one service's
// migration state. New fields accrue over the lifetime of a migration, so
// it is represented as an open map with typed accessors rather than a
// closed struct.
type ServiceConfig struct {
	Name  string
	Props map[string]string
}

// NewServiceConfig wraps a raw property map for the given service name.
func NewServiceConfig(name string, props map[string]string) *ServiceConfig {
	if props == nil {
		props = map[string]string{}
	}
	return &ServiceConfig{Name: name, Props: props}
}

// Get returns a property verbatim, applying the inference rules in §3/§4.1
// of the specification for the handful of properties that support them.
func (c *ServiceConfig) Get(key string) (string, bool) {
	switch key {
	case "database-name":
		if v, ok := c.Props["database-name"]; ok {
			return v, true
		}
		if v, ok := c.Props["readwrite-secret-name"]; ok {
			parts := strings.Split(v, ".")
			if len(parts) == 3 {
				return parts[1], true
			}
		}
		return "", false

	case "gcp-rootuser-secret-name":
		if v, ok := c.Props["gcp-rootuser-secret-name"]; ok {
			return v, true
		}
		if v, ok := c.Props["readwrite-secret-name"]; ok {
			return strings.Replace(v, ".rw", ".root", 1), true
		}
		return "", false

	case "aws-master-username":
		if v, ok := c.Props["aws-master-username"]; ok {
			return v, true
		}
		return "pgadmin", true

	case "aws-replication-password":
		v, ok := c.Props["aws-replication-password"]
		if !ok || v == "?" || v == "" {
			return "", false
		}
		return v, true
	}

	v, ok := c.Props[key]
	return v, ok
}

// MustGet is Get without the presence flag, returning "" when absent.
func (c *ServiceConfig) MustGet(key string) string {
	v, _ := c.Get(key)
	return v
}

// Validate reports every invariant violation in §3. An empty slice means
// the configuration is migration-ready.
func (c *ServiceConfig) Validate() []string {
	var errs []string

	for _, field := range requiredFields {
		if _, ok := c.Props[field]; !ok {
			errs = append(errs, fmt.Sprintf("missing configuration field %q in config %q", field, c.Name))
		}
	}

	if c.Props["gcp-migration-strategy"] == StrategyRemote {
		for _, field := range remoteFields {
			if _, ok := c.Props[field]; !ok {
				errs = append(errs, fmt.Sprintf("missing configuration field %q in config %q", field, c.Name))
			}
		}
	}

	if _, ok := c.Props["database-name"]; !ok {
		if len(strings.Split(c.Props["readwrite-secret-name"], ".")) != 3 {
			errs = append(errs, fmt.Sprintf("missing configuration field \"database-name\" in config %q", c.Name))
		}
	}

	cpu, cpuErr := strconv.Atoi(c.Props["gcp-instance-cpu"])
	mem, memErr := strconv.Atoi(c.Props["gcp-instance-mem"])
	if cpuErr != nil || memErr != nil {
		return errs
	}

	minMemByCPU := 0.9 * 1024 * float64(cpu)
	maxMemByCPU := 6.5 * 1024 * float64(cpu)

	switch {
	case cpu < 1 || cpu > 96:
		errs = append(errs, fmt.Sprintf("%s: gcp-cpu is not a valid value: %d must be between 1 and 96", c.Name, cpu))
	case cpu%2 == 1 && cpu > 1:
		errs = append(errs, fmt.Sprintf("%s: gcp-cpu is not a valid value: %d must be either 1 or an even number", c.Name, cpu))
	}

	switch {
	case mem%256 > 0:
		errs = append(errs, fmt.Sprintf("%s: gcp-mem is not a valid value: %d must be a multiple of 256 MB", c.Name, mem))
	case mem < 3840:
		errs = append(errs, fmt.Sprintf("%s: gcp-mem is not a valid value: %d must be at least 3.75 GB (3840 MB)", c.Name, mem))
	case float64(mem) < minMemByCPU || float64(mem) > maxMemByCPU:
		errs = append(errs, fmt.Sprintf("%s: gcp-mem is not a valid value: %d must be 0.9 to 6.5 GB per vCPU", c.Name, mem))
	}

	return errs
}
