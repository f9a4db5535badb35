package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/homeport/dbmigrate/internal/cloudadapter"
	"github.com/homeport/dbmigrate/internal/clusteradapter"
	"github.com/homeport/dbmigrate/internal/config"
)

// memStore is a minimal in-memory config.Store for orchestrator tests.
type memStore struct {
	mu   sync.Mutex
	docs map[string]map[string]string
}

func newMemStore(initial map[string]string) *memStore {
	return &memStore{docs: map[string]map[string]string{"svc": initial}}
}

func (m *memStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.docs {
		out = append(out, k)
	}
	return out
}

func (m *memStore) Get(service string) (*config.ServiceConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.docs[service]
	if !ok {
		return nil, &config.ErrNotFound{Service: service}
	}
	cp := map[string]string{}
	for k, v := range props {
		cp[k] = v
	}
	return config.NewServiceConfig(service, cp), nil
}

func (m *memStore) Save(service string, patch map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.docs[service]
	if !ok {
		props = map[string]string{}
	}
	for k, v := range patch {
		props[k] = v
	}
	m.docs[service] = props
	return nil
}

func (m *memStore) Validate(service string) ([]string, error) {
	cfg, err := m.Get(service)
	if err != nil {
		return nil, err
	}
	return cfg.Validate(), nil
}

func baseProps() map[string]string {
	return map[string]string{
		"aws-host":                  "rds.internal",
		"aws-instance":              "svc-instance",
		"aws-port":                  "5432",
		"aws-master-password":       "master-pw",
		"readonly-secret-name":      "svc.appdb.ro",
		"readwrite-secret-name":     "svc.appdb.rw",
		"aws-replication-password":  "repl-pw",
		"aws-replication-username":  "replicator",
		"gcp-auto-storage-increase": "true",
		"gcp-database-version":      "POSTGRES_15",
		"gcp-disk-type":             "PD_SSD",
		"gcp-instance-cpu":          "2",
		"gcp-instance-mem":          "7680",
		"gcp-instance-region":       "us-east1",
		"gcp-instance-storage":      "50",
		"gcp-migration-strategy":    "local",
		"gcp-project-name":          "proj",
		"gcp-readonly-password":     "ro-pw",
		"gcp-readwrite-password":    "rw-pw",
		"gcp-rootuser-secret-name":  "svc.appdb.root",
		"k8s-env":                   "dev",
		"k8s-namespace":             "ns",
		"k8s-service":               "svc",
		"database-name":             "appdb",
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memStore, *cloudadapter.FakeSource, *cloudadapter.FakeTarget, *clusteradapter.FakeClusterClient, *clusteradapter.FakeSQLExecutor) {
	t.Helper()
	store := newMemStore(baseProps())
	source := cloudadapter.NewFakeSource()
	target := cloudadapter.NewFakeTarget()
	target.Projects["proj"] = cloudadapter.Project{Name: "proj", ProjectID: "proj-id"}
	target.Projects["prj-d-vpc-host"] = cloudadapter.Project{Name: "prj-d-vpc-host", ProjectID: "vpc-host-id"}
	cluster := clusteradapter.NewFakeClusterClient()
	sql := clusteradapter.NewFakeSQLExecutor()

	o := New(store, source, target, cluster, sql)
	return o, store, source, target, cluster, sql
}

func TestPreflight_PassesWhenHealthyAndConnectable(t *testing.T) {
	o, _, _, _, _, _ := newTestOrchestrator(t)

	status, err := o.Preflight(context.Background(), "svc", nil)
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if status["pass"] != true {
		t.Fatalf("expected pass=true, got %+v", status)
	}
	if status["app"] != "ok" {
		t.Fatalf("expected app=ok, got %v", status["app"])
	}
}

func TestPreflight_FailsOnUnhealthyApp(t *testing.T) {
	o, _, _, _, cluster, _ := newTestOrchestrator(t)
	cluster.Healthy["ns/svc"] = false

	status, err := o.Preflight(context.Background(), "svc", nil)
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if status["pass"] != false {
		t.Fatalf("expected pass=false when app unhealthy, got %+v", status)
	}
}

func TestPreflight_BootstrapsMasterPasswordWhenMissing(t *testing.T) {
	o, store, source, _, _, _ := newTestOrchestrator(t)

	props := baseProps()
	delete(props, "aws-master-password")
	store.docs["svc"] = props

	status, err := o.Preflight(context.Background(), "svc", nil)
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if status["pass"] != true {
		t.Fatalf("expected pass=true, got %+v", status)
	}
	if source.ResetCalls != 1 {
		t.Fatalf("expected exactly one master password reset, got %d", source.ResetCalls)
	}

	cfg, err := store.Get("svc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pw, _ := cfg.Get("aws-master-password"); pw == "" {
		t.Fatalf("expected master password to be persisted")
	}
}

func TestPreflight_AllowsIngressFromEveryPrivateRange(t *testing.T) {
	o, _, source, _, _, _ := newTestOrchestrator(t)

	if _, err := o.Preflight(context.Background(), "svc", nil); err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if len(source.Ingress["svc-instance"]) != 3 {
		t.Fatalf("expected 3 allowed cidrs, got %v", source.Ingress["svc-instance"])
	}
}

func TestPreflight_ShortCircuitsOnConnectFailure(t *testing.T) {
	o, _, _, _, _, sql := newTestOrchestrator(t)
	sql.FailCheck = context.DeadlineExceeded

	status, err := o.Preflight(context.Background(), "svc", nil)
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if status["pass"] != false {
		t.Fatalf("expected pass=false, got %+v", status)
	}
	if _, ok := status["rdsReplication"]; ok {
		t.Fatalf("expected replication step to be skipped after connect failure")
	}
}

func TestSync_ReachesCDCPhase(t *testing.T) {
	o, _, _, target, cluster, _ := newTestOrchestrator(t)
	target.Hosts[sqlInstanceName("dev", "svc", o.nowStamp)] = "10.20.0.5"

	done := make(chan error, 1)
	go func() {
		done <- o.Sync(context.Background(), "svc", nil)
	}()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				target.Advance("auto-mj-svc", cloudadapter.StateRunning, cloudadapter.PhaseCDC)
			case <-stop:
				return
			}
		}
	}()

	select {
	case err := <-done:
		close(stop)
		if err != nil {
			t.Fatalf("Sync: %v", err)
		}
	case <-time.After(10 * time.Second):
		close(stop)
		t.Fatalf("Sync did not complete in time")
	}

	if len(cluster.Restarted) == 0 {
		t.Fatalf("expected app restart during sync")
	}
}

func TestCutover_RequiresCDCOrCompleted(t *testing.T) {
	o, _, _, target, _, _ := newTestOrchestrator(t)

	target.Jobs["auto-mj-svc"] = &cloudadapter.DMSJob{
		Name:  "auto-mj-svc",
		State: cloudadapter.StateNotStarted,
		Phase: cloudadapter.PhaseFullDump,
	}

	err := o.Cutover(context.Background(), "svc", nil)
	if err == nil {
		t.Fatalf("expected cutover to refuse promotion when neither RUNNING nor CDC")
	}
}

func TestCleanup_NoopWhenJobMissing(t *testing.T) {
	o, _, _, _, _, _ := newTestOrchestrator(t)
	if err := o.Cleanup(context.Background(), "svc", nil); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestCleanup_DeletesCompletedJobArtifacts(t *testing.T) {
	o, _, _, target, _, _ := newTestOrchestrator(t)

	target.Jobs["auto-mj-svc"] = &cloudadapter.DMSJob{
		Name:        "auto-mj-svc",
		State:       cloudadapter.StateCompleted,
		Phase:       cloudadapter.PhasePromote,
		Source:      "projects/proj-id/locations/us-east1/connectionProfiles/src-svc",
		Destination: "projects/proj-id/locations/us-east1/connectionProfiles/sql-d-p-svc-20260101t000000",
	}

	if err := o.Cleanup(context.Background(), "svc", nil); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(target.Deleted) != 3 {
		t.Fatalf("expected 3 deletes (instance, profile, job), got %d: %v", len(target.Deleted), target.Deleted)
	}
}
