package clusteradapter

import (
	"context"
	"fmt"
)

// FakeClusterClient is an in-memory ClusterClient double for orchestrator
// and handler tests.
type FakeClusterClient struct {
	Secrets   map[string]map[string]string // "ns/name" -> data
	Restarted []string
	Healthy   map[string]bool
}

func NewFakeClusterClient() *FakeClusterClient {
	return &FakeClusterClient{
		Secrets: map[string]map[string]string{},
		Healthy: map[string]bool{},
	}
}

func secretKey(name, namespace string) string { return namespace + "/" + name }

func (f *FakeClusterClient) CreateOrPatchSecret(ctx context.Context, name, namespace string, data map[string]string) error {
	key := secretKey(name, namespace)
	merged := map[string]string{}
	if existing, ok := f.Secrets[key]; ok {
		if old, ok := existing["password"]; ok {
			merged["old-password"] = old
		}
	}
	for k, v := range data {
		merged[k] = v
	}
	merged["jdbc_url"] = fmt.Sprintf("jdbc:postgresql://%s:%s/%s", merged["host"], merged["port"], merged["dbname"])
	f.Secrets[key] = merged
	return nil
}

func (f *FakeClusterClient) RestartWorkload(ctx context.Context, app, namespace string) error {
	f.Restarted = append(f.Restarted, secretKey(app, namespace))
	return nil
}

func (f *FakeClusterClient) PodStatus(ctx context.Context, namespace, podLabel string) (PodStatus, error) {
	return PodStatus{States: map[string]bool{"running": true}}, nil
}

func (f *FakeClusterClient) AppHealthy(ctx context.Context, namespace, app string) (bool, string, error) {
	if healthy, ok := f.Healthy[secretKey(app, namespace)]; ok {
		if healthy {
			return true, "", nil
		}
		return false, fmt.Sprintf("statefulset or deployment %s/%s does not exist", namespace, app), nil
	}
	return true, "", nil
}

// FakeSQLExecutor is an in-memory SQLExecutor double.
type FakeSQLExecutor struct {
	Connected []string
	Grants    map[string][]string // database -> []user
	Owners    map[string]string   // database -> user
	ReplUsers map[string]string   // username -> password
	FailCheck error
}

func NewFakeSQLExecutor() *FakeSQLExecutor {
	return &FakeSQLExecutor{
		Grants:    map[string][]string{},
		Owners:    map[string]string{},
		ReplUsers: map[string]string{},
	}
}

func (f *FakeSQLExecutor) CheckConnection(ctx context.Context, conn ConnInfo) error {
	if f.FailCheck != nil {
		return f.FailCheck
	}
	f.Connected = append(f.Connected, conn.Database)
	return nil
}

func (f *FakeSQLExecutor) GrantAccess(ctx context.Context, conn ConnInfo, userToGrant string) error {
	f.Grants[conn.Database] = append(f.Grants[conn.Database], userToGrant)
	return nil
}

func (f *FakeSQLExecutor) SetOwnerAllTables(ctx context.Context, conn ConnInfo, userToGrant string) error {
	f.Owners[conn.Database] = userToGrant
	return nil
}

func (f *FakeSQLExecutor) CreateReplicationUser(ctx context.Context, conn ConnInfo, username, password string) (string, error) {
	if password == "" {
		password = fmt.Sprintf("fake-repl-password-%s", username)
	}
	f.ReplUsers[username] = password
	return password, nil
}
