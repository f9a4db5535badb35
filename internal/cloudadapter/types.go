// Package cloudadapter is the opaque interface to the source cloud (AWS:
// security groups, master-password reset) and the target cloud (GCP:
// projects, DMS connection profiles/jobs, managed SQL users/instances).
package cloudadapter

import "context"

// DMS job lifecycle states, as returned by the target cloud's Database
// Migration Service.
const (
	StateCreating   = "CREATING"
	StateNotStarted = "NOT_STARTED"
	StateRunning    = "RUNNING"
	StateCompleted  = "COMPLETED"
	StateFailed     = "FAILED"
)

// DMS replication phases, in the total order used by await loops. Higher
// is further along; PhaseUnspecified sorts after every named phase.
const (
	PhaseFullDump    = "FULL_DUMP"
	PhaseCDC         = "CDC"
	PhasePromote     = "PROMOTE_IN_PROGRESS"
	PhaseUnspecified = "PHASE_UNSPECIFIED"
)

// phaseOrder gives the total ordering used by the orchestrator's awaitPhase.
var phaseOrder = map[string]int{
	PhaseFullDump:    2,
	PhaseCDC:         3,
	PhasePromote:     4,
	PhaseUnspecified: 1000,
}

// ComparePhase returns a<b, a==b, a>b as -1/0/1 under the total order.
// Unknown phases sort before every known phase.
func ComparePhase(a, b string) int {
	av, bv := phaseOrder[a], phaseOrder[b]
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// DMSJob is the remote status of a migration job, named auto-mj-{service}.
type DMSJob struct {
	Name        string
	State       string
	Phase       string
	Source      string // connection profile reference
	Destination string // connection profile reference
}

// Project is a named GCP project reference.
type Project struct {
	Name      string
	ProjectID string
}

// Source is the source-cloud capability set (AWS RDS + EC2 security groups).
type Source interface {
	// ResetMasterPassword generates a fresh master password, applies it to
	// instance, and polls until the instance is available again. Not
	// idempotent: every call mints a new password.
	ResetMasterPassword(ctx context.Context, instance string) (string, error)

	// AllowIngress authorizes any cidrBlocks not already present on the
	// instance's security group for TCP/5432, returning the newly added
	// subset.
	AllowIngress(ctx context.Context, instance string, cidrBlocks []string) ([]string, error)
}

// ConnectionProfileRequest carries the union of fields needed to upsert
// either a postgresql (source) or cloudsql (destination) connection
// profile; exactly one of the two sub-structs is populated.
type ConnectionProfileRequest struct {
	DisplayName string
	Postgres    *PostgresProfile
	CloudSQL    *CloudSQLProfile
}

// PostgresProfile describes a source-side connection profile.
type PostgresProfile struct {
	Host          string
	Port          int
	Username      string
	Password      string
	CACertificate string
}

// CloudSQLProfile describes a destination-side managed instance profile.
type CloudSQLProfile struct {
	AutoStorageIncrease bool
	DiskType            string
	RootPassword        string
	DatabaseVersion     string
	Tier                string
	StorageGB           int
	SourceProfileRef    string
	PrivateNetwork      string
}

// MigrationJobRequest describes a CONTINUOUS DMS job.
type MigrationJobRequest struct {
	SourceProfileRef      string
	DestinationProfileRef string
	VPCPeeringNetwork     string
}

// Target is the target-cloud capability set (GCP projects, DMS, managed SQL).
type Target interface {
	// ListProjects returns every visible project keyed by display name.
	ListProjects(ctx context.Context) (map[string]Project, error)

	// UpsertConnectionProfile creates or updates a DMS connection profile.
	UpsertConnectionProfile(ctx context.Context, project, region, id string, req ConnectionProfileRequest) error

	// CreateMigrationJob creates (but does not start) a CONTINUOUS DMS job.
	CreateMigrationJob(ctx context.Context, project, region, id string, req MigrationJobRequest) error

	// StartMigrationJob starts a previously created DMS job.
	StartMigrationJob(ctx context.Context, project, region, id string) error

	// GetDMSStatus returns the job's current state/phase, or nil if absent.
	GetDMSStatus(ctx context.Context, project, region, id string) (*DMSJob, error)

	// PromoteDMSJob promotes the job to primary.
	PromoteDMSJob(ctx context.Context, project, region, id string) error

	// DeleteDMSJob best-effort deletes a completed job.
	DeleteDMSJob(ctx context.Context, project, region, id string) error

	// DeleteConnectionProfile best-effort deletes a connection profile by
	// its fully qualified reference.
	DeleteConnectionProfile(ctx context.Context, ref string) error

	// GetInstanceName derives the managed SQL instance name from the
	// migration job's destination connection profile reference, or
	// returns "" if the job (and therefore the instance) doesn't exist yet.
	GetInstanceName(ctx context.Context, project, region, migrationJobID string) (string, error)

	// GetHost returns the private IP/hostname of a managed SQL instance.
	GetHost(ctx context.Context, project, instance string) (string, error)

	// CreateUser creates (idempotently) a managed SQL user. If password is
	// "", one is generated. Returns the password in effect.
	CreateUser(ctx context.Context, project, instance, username, password string) (string, error)

	// DeleteInstance best-effort deletes a managed SQL instance.
	DeleteInstance(ctx context.Context, project, instance string) error
}
