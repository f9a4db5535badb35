package cloudadapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeSource is an in-memory Source double for orchestrator tests.
type FakeSource struct {
	Passwords  map[string]string
	Ingress    map[string][]string
	ResetCalls int
	FailReset  error
}

func NewFakeSource() *FakeSource {
	return &FakeSource{
		Passwords: map[string]string{},
		Ingress:   map[string][]string{},
	}
}

func (f *FakeSource) ResetMasterPassword(ctx context.Context, instance string) (string, error) {
	f.ResetCalls++
	if f.FailReset != nil {
		return "", f.FailReset
	}
	pw := fmt.Sprintf("fake-password-%d", f.ResetCalls)
	f.Passwords[instance] = pw
	return pw, nil
}

func (f *FakeSource) AllowIngress(ctx context.Context, instance string, cidrBlocks []string) ([]string, error) {
	existing := map[string]bool{}
	for _, c := range f.Ingress[instance] {
		existing[c] = true
	}

	var added []string
	for _, c := range cidrBlocks {
		if !existing[c] {
			added = append(added, c)
			f.Ingress[instance] = append(f.Ingress[instance], c)
		}
	}
	return added, nil
}

// FakeTarget is an in-memory Target double. Jobs are keyed by migration job
// ID; each holds only its current state/phase, which tests move forward with
// Advance between an orchestrator's await-loop polls.
type FakeTarget struct {
	Projects           map[string]Project
	Jobs               map[string]*DMSJob
	ConnectionProfiles map[string]ConnectionProfileRequest
	Instances          map[string]map[string]string // instance -> user -> password
	Hosts              map[string]string
	Deleted            []string

	mu sync.Mutex
}

func NewFakeTarget() *FakeTarget {
	return &FakeTarget{
		Projects:           map[string]Project{},
		Jobs:               map[string]*DMSJob{},
		ConnectionProfiles: map[string]ConnectionProfileRequest{},
		Instances:          map[string]map[string]string{},
		Hosts:              map[string]string{},
	}
}

func (f *FakeTarget) ListProjects(ctx context.Context) (map[string]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Project, len(f.Projects))
	for k, v := range f.Projects {
		out[k] = v
	}
	return out, nil
}

func (f *FakeTarget) UpsertConnectionProfile(ctx context.Context, project, region, id string, req ConnectionProfileRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectionProfiles[id] = req
	return nil
}

func (f *FakeTarget) CreateMigrationJob(ctx context.Context, project, region, id string, req MigrationJobRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.Jobs[id]; exists {
		return nil
	}
	f.Jobs[id] = &DMSJob{
		Name:        id,
		State:       StateNotStarted,
		Phase:       PhaseUnspecified,
		Source:      req.SourceProfileRef,
		Destination: req.DestinationProfileRef,
	}
	return nil
}

func (f *FakeTarget) StartMigrationJob(ctx context.Context, project, region, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.Jobs[id]
	if !ok {
		return fmt.Errorf("no such migration job %s", id)
	}
	job.State = StateRunning
	job.Phase = PhaseFullDump
	return nil
}

func (f *FakeTarget) GetDMSStatus(ctx context.Context, project, region, id string) (*DMSJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.Jobs[id]
	if !ok {
		return nil, nil
	}
	copyJob := *job
	return &copyJob, nil
}

// Advance is a test helper, not part of Target, letting a test move a
// scripted job forward one phase between orchestrator polls.
func (f *FakeTarget) Advance(id, state, phase string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.Jobs[id]; ok {
		job.State = state
		job.Phase = phase
	}
}

func (f *FakeTarget) PromoteDMSJob(ctx context.Context, project, region, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.Jobs[id]
	if !ok {
		return fmt.Errorf("no such migration job %s", id)
	}
	job.Phase = PhasePromote
	return nil
}

func (f *FakeTarget) DeleteDMSJob(ctx context.Context, project, region, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Jobs, id)
	f.Deleted = append(f.Deleted, id)
	return nil
}

func (f *FakeTarget) DeleteConnectionProfile(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ConnectionProfiles, ref)
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *FakeTarget) GetInstanceName(ctx context.Context, project, region, migrationJobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.Jobs[migrationJobID]
	if !ok || job.Destination == "" {
		return "", nil
	}
	parts := strings.Split(job.Destination, "/")
	return parts[len(parts)-1], nil
}

func (f *FakeTarget) GetHost(ctx context.Context, project, instance string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	host, ok := f.Hosts[instance]
	if !ok {
		return "", fmt.Errorf("instance %s has no addresses", instance)
	}
	return host, nil
}

func (f *FakeTarget) CreateUser(ctx context.Context, project, instance, username, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if password == "" {
		password = fmt.Sprintf("fake-password-%s-%s", instance, username)
	}
	if f.Instances[instance] == nil {
		f.Instances[instance] = map[string]string{}
	}
	f.Instances[instance][username] = password
	return password, nil
}

func (f *FakeTarget) DeleteInstance(ctx context.Context, project, instance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Instances, instance)
	f.Deleted = append(f.Deleted, instance)
	return nil
}
