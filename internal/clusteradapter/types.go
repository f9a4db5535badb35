// Package clusteradapter talks to the Kubernetes cluster that runs a
// service: its Secret (credentials), its Deployment/StatefulSet (restart),
// its pods (health), and its PostgreSQL database itself (grants, ownership,
// replication user setup) via one of two interchangeable SQL strategies.
package clusteradapter

import "context"

// ConnInfo is the set of parameters needed to reach a PostgreSQL database.
type ConnInfo struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// SQLExecutor runs the PostgreSQL-side statements needed to prepare a
// database for migration and to finish grants after cutover. There are two
// implementations: ShellExecutor (shells out to psql, used when running
// the orchestrator locally) and NativeExecutor (direct pgx
// connection, used when the orchestrator itself runs inside the cluster).
type SQLExecutor interface {
	// CheckConnection verifies conn is reachable, surfacing any connect
	// error so a preflight step can fail fast.
	CheckConnection(ctx context.Context, conn ConnInfo) error

	// GrantAccess grants userToGrant all privileges on every table in every
	// non-system schema if userToGrant is "readwrite"; any other user gets
	// SELECT on the tables of the public schema only.
	GrantAccess(ctx context.Context, conn ConnInfo, userToGrant string) error

	// SetOwnerAllTables reassigns ownership of every table in every
	// non-system schema to userToGrant.
	SetOwnerAllTables(ctx context.Context, conn ConnInfo, userToGrant string) error

	// CreateReplicationUser creates username (or resets its password if it
	// already exists), grants it rds_replication, and wires it up for
	// logical replication on every target database. If password is "", one
	// is generated. Returns the password in effect.
	CreateReplicationUser(ctx context.Context, conn ConnInfo, username, password string) (string, error)
}

// PodStatus summarizes the containers backing one logical pod group.
type PodStatus struct {
	Restarts int
	States   map[string]bool // "running", "error"
}

// ClusterClient is the Kubernetes-facing half of the cluster adapter:
// secrets, workload restarts, and pod health.
type ClusterClient interface {
	// CreateOrPatchSecret writes data (string values, base64-encoded by the
	// implementation) into the named Secret. It derives jdbc_url from
	// host/port/dbname keys in data when present, and preserves the
	// previous password under old-password if the secret already existed.
	CreateOrPatchSecret(ctx context.Context, name, namespace string, data map[string]string) error

	// RestartWorkload annotates a Deployment or StatefulSet named app in
	// namespace to force a rolling restart. Tries Deployment first, then
	// StatefulSet; logs (does not error) if neither is found.
	RestartWorkload(ctx context.Context, app, namespace string) error

	// PodStatus reports aggregate restart count and container states for
	// pods labeled app=podLabel in namespace.
	PodStatus(ctx context.Context, namespace, podLabel string) (PodStatus, error)

	// AppHealthy reports whether a Deployment or StatefulSet named app
	// exists in namespace, with a human-readable reason if not.
	AppHealthy(ctx context.Context, namespace, app string) (bool, string, error)
}
