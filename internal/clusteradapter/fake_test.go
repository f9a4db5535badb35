package clusteradapter

import (
	"context"
	"testing"
)

func TestFakeSQLExecutor_CreateReplicationUserGeneratesPassword(t *testing.T) {
	exec := NewFakeSQLExecutor()
	pw, err := exec.CreateReplicationUser(context.Background(), ConnInfo{Database: "appdb"}, "replicator", "")
	if err != nil {
		t.Fatalf("CreateReplicationUser: %v", err)
	}
	if pw == "" {
		t.Fatalf("expected a generated password")
	}
	if exec.ReplUsers["replicator"] != pw {
		t.Fatalf("expected recorded password to match returned password")
	}
}

func TestFakeClusterClient_SecretRoundTrip(t *testing.T) {
	client := NewFakeClusterClient()
	ctx := context.Background()

	if err := client.CreateOrPatchSecret(ctx, "svc", "ns", map[string]string{"password": "p1", "host": "h", "port": "5432", "dbname": "d"}); err != nil {
		t.Fatalf("CreateOrPatchSecret: %v", err)
	}
	if err := client.CreateOrPatchSecret(ctx, "svc", "ns", map[string]string{"password": "p2", "host": "h", "port": "5432", "dbname": "d"}); err != nil {
		t.Fatalf("CreateOrPatchSecret: %v", err)
	}

	got := client.Secrets["ns/svc"]
	if got["old-password"] != "p1" {
		t.Fatalf("expected old-password to carry forward, got %q", got["old-password"])
	}
	if got["password"] != "p2" {
		t.Fatalf("expected password updated, got %q", got["password"])
	}
}
