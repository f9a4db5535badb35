package clusteradapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

// systemSchemas are excluded from every "all schemas" grant/ownership
// sweep; they belong to the platform, not to application data.
var systemSchemas = []string{"pg_catalog", "information_schema", "hdb_catalog", "hdb_views", "pglogical"}

// ShellExecutor implements SQLExecutor by shelling out to psql through a
// proxy pod, for use when the orchestrator runs outside the cluster (an
// operator's laptop) and reaches the database through a kubectl port-forward
// or bastion pod rather than a direct network path.
type ShellExecutor struct {
	// PsqlPath is the psql binary to invoke; defaults to "psql" on PATH.
	PsqlPath string
}

func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{PsqlPath: "psql"}
}

func (s *ShellExecutor) bin() string {
	if s.PsqlPath != "" {
		return s.PsqlPath
	}
	return "psql"
}

func (s *ShellExecutor) run(ctx context.Context, conn ConnInfo, statements ...string) error {
	args := []string{
		"-h", conn.Host,
		"-p", fmt.Sprintf("%d", conn.Port),
		"-d", conn.Database,
		"-U", conn.Username,
		"-v", "ON_ERROR_STOP=1",
		"-q",
	}
	for _, stmt := range statements {
		args = append(args, "-c", stmt)
	}

	cmd := exec.CommandContext(ctx, s.bin(), args...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("PGPASSWORD=%s", conn.Password))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("psql %s@%s/%s: %w: %s", conn.Username, conn.Host, conn.Database, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (s *ShellExecutor) queryOneColumn(ctx context.Context, conn ConnInfo, query string) ([]string, error) {
	args := []string{
		"-h", conn.Host,
		"-p", fmt.Sprintf("%d", conn.Port),
		"-d", conn.Database,
		"-U", conn.Username,
		"-v", "ON_ERROR_STOP=1",
		"-qtA",
		"-c", query,
	}
	cmd := exec.CommandContext(ctx, s.bin(), args...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("PGPASSWORD=%s", conn.Password))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("psql query %s@%s/%s: %w: %s", conn.Username, conn.Host, conn.Database, err, strings.TrimSpace(stderr.String()))
	}

	var rows []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rows = append(rows, line)
		}
	}
	return rows, nil
}

func (s *ShellExecutor) CheckConnection(ctx context.Context, conn ConnInfo) error {
	if err := s.run(ctx, conn, "SELECT 1"); err != nil {
		return err
	}
	logger.Debug("connection check ok", "user", conn.Username, "host", conn.Host, "port", conn.Port, "database", conn.Database)
	return nil
}

func systemSchemasFilter() string {
	quoted := make([]string, len(systemSchemas))
	for i, s := range systemSchemas {
		quoted[i] = fmt.Sprintf("'%s'", s)
	}
	return strings.Join(quoted, ", ")
}

func nonSystemSchemasQuery() string {
	return fmt.Sprintf(`select distinct schemaname from pg_catalog.pg_tables where schemaname not in (%s);`, systemSchemasFilter())
}

func (s *ShellExecutor) GrantAccess(ctx context.Context, conn ConnInfo, userToGrant string) error {
	priv := "SELECT"
	schemas := []string{"public"}
	if userToGrant == "readwrite" {
		priv = "ALL PRIVILEGES"
		rows, err := s.queryOneColumn(ctx, conn, nonSystemSchemasQuery())
		if err != nil {
			return err
		}
		schemas = rows
	}

	var statements []string
	for _, schema := range schemas {
		statements = append(statements, fmt.Sprintf("GRANT %s ON ALL TABLES IN SCHEMA %s TO %s;", priv, schema, userToGrant))
	}
	if err := s.run(ctx, conn, statements...); err != nil {
		logger.Warn("failed to GRANT database access permission", "user", userToGrant, "database", conn.Database)
		return err
	}
	return nil
}

func (s *ShellExecutor) SetOwnerAllTables(ctx context.Context, conn ConnInfo, userToGrant string) error {
	rows, err := s.queryOneColumn(ctx, conn, fmt.Sprintf(
		`select schemaname || '.' || tablename from pg_catalog.pg_tables where schemaname not in (%s);`,
		systemSchemasFilter()))
	if err != nil {
		return err
	}

	var statements []string
	for _, table := range rows {
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s OWNER TO %s;", table, userToGrant))
	}
	if err := s.run(ctx, conn, statements...); err != nil {
		logger.Warn("failed to GRANT owner to tables", "user", userToGrant, "database", conn.Database)
		return err
	}
	return nil
}

func (s *ShellExecutor) CreateReplicationUser(ctx context.Context, conn ConnInfo, username, password string) (string, error) {
	if password == "" {
		password = uuid.NewString()
	}

	createStatements := []string{
		fmt.Sprintf("CREATE USER %s;", username),
	}
	_ = s.run(ctx, conn, createStatements...) // ignore: role may already exist

	if err := s.run(ctx, conn,
		fmt.Sprintf("ALTER USER %s PASSWORD '%s';", username, password),
		fmt.Sprintf("GRANT rds_replication TO %s;", username),
	); err != nil {
		return "", fmt.Errorf("create replication user %s: %w", username, err)
	}

	targetDBs, err := s.queryOneColumn(ctx, conn, `
		select datname from pg_database pgd
		inner join pg_roles pgr on pgr.oid = pgd.datdba
		where datistemplate = FALSE and datallowconn = TRUE and rolname <> 'rdsadmin';`)
	if err != nil {
		logger.Warn("failed to list target databases for replication user setup", "error", err)
		return password, nil
	}

	for _, db := range targetDBs {
		dbConn := conn
		dbConn.Database = db
		if err := s.assignReplicationUser(ctx, dbConn, username); err != nil {
			logger.Warn("failed to assign replication user on database", "database", db, "error", err)
		}
	}

	return password, nil
}

func (s *ShellExecutor) assignReplicationUser(ctx context.Context, conn ConnInfo, username string) error {
	if err := s.run(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS pglogical;",
		fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA pglogical TO %s;", username),
	); err != nil {
		return err
	}

	schemas, err := s.queryOneColumn(ctx, conn, nonSystemSchemasQuery())
	if err != nil {
		return err
	}

	var statements []string
	for _, schema := range schemas {
		statements = append(statements,
			fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s;", schema, username),
			fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA %s TO %s;", schema, username),
			fmt.Sprintf("GRANT SELECT ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, username),
		)
	}
	return s.run(ctx, conn, statements...)
}
