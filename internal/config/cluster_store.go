package config

import (
	"context"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

// ClusterStore is a Store backed by a Kubernetes ConfigMap: one key per
// service, each value a YAML-encoded property map. Concurrent workers
// write through the same ConfigMap, so Save retries on a resourceVersion
// conflict (HTTP 409) up to maxSaveAttempts, reloading and re-merging each
// time so no attempt clobbers a concurrent writer's patch.
type ClusterStore struct {
	client    kubernetes.Interface
	name      string
	namespace string

	mu  sync.Mutex
	cfg map[string]map[string]string
}

// NewClusterStore loads the named ConfigMap and returns a Store over it.
func NewClusterStore(ctx context.Context, client kubernetes.Interface, name, namespace string) (*ClusterStore, error) {
	s := &ClusterStore{client: client, name: name, namespace: namespace}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClusterStore) load(ctx context.Context) error {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	cfg := map[string]map[string]string{}
	for service, blob := range cm.Data {
		props := map[string]string{}
		if err := yaml.Unmarshal([]byte(blob), &props); err != nil {
			return err
		}
		cfg[service] = props
	}
	s.cfg = cfg
	return nil
}

// Keys returns the known service names in sorted order.
func (s *ClusterStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.cfg))
	for k := range s.cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the ServiceConfig for service, or ErrNotFound.
func (s *ClusterStore) Get(service string) (*ServiceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.cfg[service]
	if !ok {
		return nil, &ErrNotFound{Service: service}
	}
	return NewServiceConfig(service, props), nil
}

// Save merges patch into service's properties, retrying the
// reload-merge-patch cycle on a resourceVersion conflict.
func (s *ClusterStore) Save(service string, patch map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	logger.Debug("updating config properties", "service", service, "keys", keysOf(patch))

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
		if err != nil {
			return err
		}

		props := map[string]string{}
		if blob, ok := cm.Data[service]; ok {
			if err := yaml.Unmarshal([]byte(blob), &props); err != nil {
				return err
			}
		}
		for k, v := range patch {
			props[k] = v
		}

		out, err := yaml.Marshal(props)
		if err != nil {
			return err
		}
		if cm.Data == nil {
			cm.Data = map[string]string{}
		}
		cm.Data[service] = string(out)

		if _, err := s.client.CoreV1().ConfigMaps(s.namespace).Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
			if apierrors.IsConflict(err) {
				continue
			}
			return err
		}

		if s.cfg == nil {
			s.cfg = map[string]map[string]string{}
		}
		s.cfg[service] = props
		return nil
	}

	return &ErrConflict{Service: service, Attempts: maxSaveAttempts}
}

// Validate runs ServiceConfig.Validate for the named service.
func (s *ClusterStore) Validate(service string) ([]string, error) {
	cfg, err := s.Get(service)
	if err != nil {
		return nil, err
	}
	return cfg.Validate(), nil
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
