package cloudadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	crm "google.golang.org/api/cloudresourcemanager/v1"
	dms "google.golang.org/api/datamigration/v1"
	"google.golang.org/api/googleapi"
	sqladmin "google.golang.org/api/sqladmin/v1"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

// GCPTarget implements Target against real Cloud Resource Manager, Database
// Migration Service, and Cloud SQL Admin APIs.
type GCPTarget struct {
	Projects *crm.Service
	DMS      *dms.Service
	SQL      *sqladmin.Service
}

// NewGCPTarget wraps already-constructed REST clients. The caller builds
// each with its package's NewService(ctx), which picks up Application
// Default Credentials, the ambient-credential convention used throughout
// the Google API client libraries.
func NewGCPTarget(projects *crm.Service, migration *dms.Service, sql *sqladmin.Service) *GCPTarget {
	return &GCPTarget{Projects: projects, DMS: migration, SQL: sql}
}

func (g *GCPTarget) ListProjects(ctx context.Context) (map[string]Project, error) {
	out := map[string]Project{}
	err := g.Projects.Projects.List().Pages(ctx, func(page *crm.ListProjectsResponse) error {
		for _, p := range page.Projects {
			out[p.Name] = Project{Name: p.Name, ProjectID: p.ProjectId}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func locationPath(project, region string) string {
	return fmt.Sprintf("projects/%s/locations/%s", project, region)
}

func connectionProfilePath(project, region, id string) string {
	return fmt.Sprintf("%s/connectionProfiles/%s", locationPath(project, region), id)
}

func migrationJobPath(project, region, id string) string {
	return fmt.Sprintf("%s/migrationJobs/%s", locationPath(project, region), id)
}

func (g *GCPTarget) UpsertConnectionProfile(ctx context.Context, project, region, id string, req ConnectionProfileRequest) error {
	profile := &dms.ConnectionProfile{
		DisplayName: req.DisplayName,
	}

	switch {
	case req.Postgres != nil:
		profile.Postgresql = &dms.PostgreSqlConnectionProfile{
			Host:     req.Postgres.Host,
			Port:     int64(req.Postgres.Port),
			Username: req.Postgres.Username,
			Password: req.Postgres.Password,
			Ssl: &dms.SslConfig{
				Type:          "SERVER_ONLY",
				CaCertificate: req.Postgres.CACertificate,
			},
		}
	case req.CloudSQL != nil:
		profile.Cloudsql = &dms.CloudSqlConnectionProfile{
			Settings: &dms.CloudSqlSettings{
				AutoStorageIncrease: req.CloudSQL.AutoStorageIncrease,
				DataDiskType:        req.CloudSQL.DiskType,
				RootPassword:        req.CloudSQL.RootPassword,
				DatabaseVersion:     req.CloudSQL.DatabaseVersion,
				Tier:                req.CloudSQL.Tier,
				DataDiskSizeGb:      int64(req.CloudSQL.StorageGB),
				SourceId:            req.CloudSQL.SourceProfileRef,
				IpConfig: &dms.SqlIpConfig{
					EnableIpv4:     false,
					PrivateNetwork: req.CloudSQL.PrivateNetwork,
				},
			},
		}
	default:
		return fmt.Errorf("connection profile request for %s carries neither postgres nor cloudsql settings", id)
	}

	parent := locationPath(project, region)
	_, err := g.DMS.Projects.Locations.ConnectionProfiles.
		Create(parent, profile).
		ConnectionProfileId(id).
		Context(ctx).
		Do()
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 409 {
		_, err = g.DMS.Projects.Locations.ConnectionProfiles.
			Patch(connectionProfilePath(project, region, id), profile).
			Context(ctx).
			Do()
	}
	if err != nil {
		return fmt.Errorf("upsert connection profile %s: %w", id, err)
	}
	return nil
}

func (g *GCPTarget) CreateMigrationJob(ctx context.Context, project, region, id string, req MigrationJobRequest) error {
	job := &dms.MigrationJob{
		Type:        "CONTINUOUS",
		Source:      req.SourceProfileRef,
		Destination: req.DestinationProfileRef,
		DestinationDatabase: &dms.DatabaseType{
			Provider: "CLOUDSQL",
			Engine:   "POSTGRESQL",
		},
		VpcPeeringConnectivity: &dms.VpcPeeringConnectivity{
			Vpc: req.VPCPeeringNetwork,
		},
	}

	parent := locationPath(project, region)
	_, err := g.DMS.Projects.Locations.MigrationJobs.
		Create(parent, job).
		MigrationJobId(id).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("create migration job %s: %w", id, err)
	}
	return nil
}

func (g *GCPTarget) StartMigrationJob(ctx context.Context, project, region, id string) error {
	_, err := g.DMS.Projects.Locations.MigrationJobs.
		Start(migrationJobPath(project, region, id), &dms.StartMigrationJobRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("start migration job %s: %w", id, err)
	}
	return nil
}

func (g *GCPTarget) GetDMSStatus(ctx context.Context, project, region, id string) (*DMSJob, error) {
	job, err := g.DMS.Projects.Locations.MigrationJobs.
		Get(migrationJobPath(project, region, id)).
		Context(ctx).
		Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("describe migration job %s: %w", id, err)
	}

	return &DMSJob{
		Name:        id,
		State:       job.State,
		Phase:       job.Phase,
		Source:      job.Source,
		Destination: job.Destination,
	}, nil
}

func (g *GCPTarget) PromoteDMSJob(ctx context.Context, project, region, id string) error {
	_, err := g.DMS.Projects.Locations.MigrationJobs.
		Promote(migrationJobPath(project, region, id), &dms.PromoteMigrationJobRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("promote migration job %s: %w", id, err)
	}
	return nil
}

func (g *GCPTarget) DeleteDMSJob(ctx context.Context, project, region, id string) error {
	_, err := g.DMS.Projects.Locations.MigrationJobs.
		Delete(migrationJobPath(project, region, id)).
		Context(ctx).
		Do()
	return err
}

func (g *GCPTarget) DeleteConnectionProfile(ctx context.Context, ref string) error {
	_, err := g.DMS.Projects.Locations.ConnectionProfiles.
		Delete(ref).
		Context(ctx).
		Do()
	return err
}

// GetInstanceName derives the destination instance name from the
// migration job's destination connection profile reference, the final
// path segment, same as the original's "split('/')[-1]" convention.
func (g *GCPTarget) GetInstanceName(ctx context.Context, project, region, migrationJobID string) (string, error) {
	job, err := g.GetDMSStatus(ctx, project, region, migrationJobID)
	if err != nil {
		return "", err
	}
	if job == nil || job.Destination == "" {
		return "", nil
	}
	parts := strings.Split(job.Destination, "/")
	return parts[len(parts)-1], nil
}

func (g *GCPTarget) GetHost(ctx context.Context, project, instance string) (string, error) {
	inst, err := g.SQL.Instances.Get(project, instance).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("describe instance %s: %w", instance, err)
	}
	for _, ip := range inst.IpAddresses {
		if ip.Type == "PRIVATE" {
			return ip.IpAddress, nil
		}
	}
	if len(inst.IpAddresses) > 0 {
		return inst.IpAddresses[0].IpAddress, nil
	}
	return "", fmt.Errorf("instance %s has no addresses", instance)
}

func (g *GCPTarget) CreateUser(ctx context.Context, project, instance, username, password string) (string, error) {
	if password == "" {
		password = uuid.NewString()
	}

	_, err := g.SQL.Users.Insert(project, instance, &sqladmin.User{
		Name:     username,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 409 {
			logger.Debug("managed SQL user already exists", "instance", instance, "user", username)
			return password, nil
		}
		return "", fmt.Errorf("create user %s on %s: %w", username, instance, err)
	}
	return password, nil
}

func (g *GCPTarget) DeleteInstance(ctx context.Context, project, instance string) error {
	_, err := g.SQL.Instances.Delete(project, instance).Context(ctx).Do()
	return err
}
