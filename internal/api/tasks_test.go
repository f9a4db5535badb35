package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/homeport/dbmigrate/internal/cloudadapter"
	"github.com/homeport/dbmigrate/internal/clusteradapter"
	"github.com/homeport/dbmigrate/internal/config"
	"github.com/homeport/dbmigrate/internal/orchestrator"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	orch := orchestrator.New(
		&noopStore{},
		cloudadapter.NewFakeSource(),
		cloudadapter.NewFakeTarget(),
		clusteradapter.NewFakeClusterClient(),
		clusteradapter.NewFakeSQLExecutor(),
	)

	s := NewServer(Config{Host: "localhost", Port: 0}, orch)
	return httptest.NewServer(s.Router())
}

// noopStore is a minimal config.Store that always reports not found; only
// the dummy worker (which never touches the store) is exercised by these
// tests.
type noopStore struct{}

func (noopStore) Keys() []string { return nil }
func (noopStore) Get(service string) (*config.ServiceConfig, error) {
	return nil, &config.ErrNotFound{Service: service}
}
func (noopStore) Save(service string, patch map[string]string) error { return nil }
func (noopStore) Validate(service string) ([]string, error)          { return nil, nil }

// fixedStore always serves the same properties for any service, enough to
// drive a real Preflight worker through the HTTP surface.
type fixedStore struct {
	props map[string]string
}

func (s *fixedStore) Keys() []string { return []string{"svc"} }
func (s *fixedStore) Get(service string) (*config.ServiceConfig, error) {
	cp := map[string]string{}
	for k, v := range s.props {
		cp[k] = v
	}
	return config.NewServiceConfig(service, cp), nil
}
func (s *fixedStore) Save(service string, patch map[string]string) error {
	for k, v := range patch {
		s.props[k] = v
	}
	return nil
}
func (s *fixedStore) Validate(service string) ([]string, error) {
	cfg, err := s.Get(service)
	if err != nil {
		return nil, err
	}
	return cfg.Validate(), nil
}

func preflightProps() map[string]string {
	return map[string]string{
		"aws-host":                 "rds.internal",
		"aws-instance":             "svc-instance",
		"aws-port":                 "5432",
		"aws-master-password":      "master-pw",
		"readonly-secret-name":     "svc.appdb.ro",
		"readwrite-secret-name":    "svc.appdb.rw",
		"aws-replication-password": "repl-pw",
		"aws-replication-username": "replicator",
		"gcp-rootuser-secret-name": "svc.appdb.root",
		"k8s-namespace":            "ns",
		"k8s-service":              "svc",
		"database-name":            "appdb",
	}
}

func TestHandleListKinds(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]bool{"preflight": true, "sync": true, "cutover": true, "cleanup": true, "dummy": true}
	if len(body["tasks"]) != len(want) {
		t.Fatalf("got kinds %v", body["tasks"])
	}
	for _, k := range body["tasks"] {
		if !want[k] {
			t.Fatalf("unexpected kind %q", k)
		}
	}
}

func TestDummyTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tasks/dummy/1", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	// A second create before delete must conflict.
	resp, err = http.Post(srv.URL+"/tasks/dummy/1", "application/json", nil)
	if err != nil {
		t.Fatalf("POST duplicate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status = %d", resp.StatusCode)
	}

	var snap taskResponse
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(srv.URL + "/tasks/dummy/1")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("get status = %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			resp.Body.Close()
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if snap.State == "complete" {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if snap.State != "complete" {
		t.Fatalf("task did not complete in time, last state %q", snap.State)
	}
	if snap.OK == nil || !*snap.OK {
		t.Fatalf("expected ok=true, got %+v", snap.OK)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/tasks/dummy/1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/tasks/dummy/1")
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

// TestPreflightTaskReportsNotOKOnFailedCheck exercises spec scenario 3: a
// preflight run that completes without error but whose status reports
// pass=false must surface as a completed task with ok=false, not ok=true.
func TestPreflightTaskReportsNotOKOnFailedCheck(t *testing.T) {
	store := &fixedStore{props: preflightProps()}
	cluster := clusteradapter.NewFakeClusterClient()
	cluster.Healthy["ns/svc"] = false

	orch := orchestrator.New(
		store,
		cloudadapter.NewFakeSource(),
		cloudadapter.NewFakeTarget(),
		cluster,
		clusteradapter.NewFakeSQLExecutor(),
	)

	s := NewServer(Config{Host: "localhost", Port: 0}, orch)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tasks/preflight/svc", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	var snap taskResponse
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(srv.URL + "/tasks/preflight/svc")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			resp.Body.Close()
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if snap.State == "complete" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if snap.State != "complete" {
		t.Fatalf("task did not complete in time, last state %q", snap.State)
	}
	if snap.OK == nil || *snap.OK {
		t.Fatalf("expected ok=false for a failed preflight check, got %+v", snap.OK)
	}
	value, ok := snap.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected status map as value, got %T: %+v", snap.Value, snap.Value)
	}
	if pass, _ := value["pass"].(bool); pass {
		t.Fatalf("expected pass=false in surfaced status, got %+v", value)
	}
}

func TestCreateTaskUnknownKind(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tasks/nope/svc", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDeleteUnknownTask(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/tasks/dummy/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
