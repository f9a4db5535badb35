package clusteradapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

// NativeExecutor implements SQLExecutor with a direct pgx connection, for
// use when the orchestrator runs inside the cluster and can reach the
// database over the private network without a proxy hop.
type NativeExecutor struct{}

func NewNativeExecutor() *NativeExecutor {
	return &NativeExecutor{}
}

func dsn(conn ConnInfo) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", conn.Username, conn.Password, conn.Host, conn.Port, conn.Database)
}

func (n *NativeExecutor) connect(ctx context.Context, conn ConnInfo) (*pgx.Conn, error) {
	c, err := pgx.Connect(ctx, dsn(conn))
	if err != nil {
		return nil, fmt.Errorf("connect to %s/%s: %w", conn.Host, conn.Database, err)
	}
	return c, nil
}

func (n *NativeExecutor) CheckConnection(ctx context.Context, conn ConnInfo) error {
	c, err := n.connect(ctx, conn)
	if err != nil {
		logger.Warn("failed to connect to postgres", "host", conn.Host, "database", conn.Database)
		return err
	}
	defer c.Close(ctx)

	var one int
	if err := c.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("check connection: %w", err)
	}
	return nil
}

func (n *NativeExecutor) listSchemas(ctx context.Context, c *pgx.Conn) ([]string, error) {
	rows, err := c.Query(ctx, `
		select distinct schemaname
		from pg_catalog.pg_tables
		where schemaname not in ('pg_catalog', 'information_schema', 'hdb_catalog', 'hdb_views', 'pglogical');`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

func (n *NativeExecutor) GrantAccess(ctx context.Context, conn ConnInfo, userToGrant string) error {
	c, err := n.connect(ctx, conn)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	priv := "SELECT"
	schemas := []string{"public"}
	if userToGrant == "readwrite" {
		priv = "ALL PRIVILEGES"
		schemas, err = n.listSchemas(ctx, c)
		if err != nil {
			return err
		}
	}

	for _, schema := range schemas {
		if _, err := c.Exec(ctx, fmt.Sprintf("GRANT %s ON ALL TABLES IN SCHEMA %s TO %s;", priv, schema, userToGrant)); err != nil {
			return fmt.Errorf("grant %s on schema %s: %w", priv, schema, err)
		}
	}
	return nil
}

func (n *NativeExecutor) SetOwnerAllTables(ctx context.Context, conn ConnInfo, userToGrant string) error {
	c, err := n.connect(ctx, conn)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	rows, err := c.Query(ctx, `
		select schemaname, tablename from pg_catalog.pg_tables where schemaname in
			(select distinct schemaname from pg_catalog.pg_tables
			 where schemaname not in ('pg_catalog', 'information_schema', 'hdb_catalog', 'hdb_views', 'pglogical'));`)
	if err != nil {
		return err
	}

	var tables []string
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, fmt.Sprintf("%s.%s", schema, table))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range tables {
		if _, err := c.Exec(ctx, fmt.Sprintf("ALTER TABLE %s OWNER TO %s;", table, userToGrant)); err != nil {
			return fmt.Errorf("set owner on %s: %w", table, err)
		}
	}
	return nil
}

func (n *NativeExecutor) CreateReplicationUser(ctx context.Context, conn ConnInfo, username, password string) (string, error) {
	if password == "" {
		password = uuid.NewString()
	}

	c, err := n.connect(ctx, conn)
	if err != nil {
		return "", err
	}

	if _, err := c.Exec(ctx, fmt.Sprintf("CREATE USER %s;", username)); err != nil {
		logger.Debug("replication user already exists, continuing", "username", username)
	}
	if _, err := c.Exec(ctx, fmt.Sprintf("ALTER USER %s PASSWORD '%s';", username, password)); err != nil {
		c.Close(ctx)
		return "", fmt.Errorf("set replication user password: %w", err)
	}
	if _, err := c.Exec(ctx, fmt.Sprintf("GRANT rds_replication TO %s;", username)); err != nil {
		c.Close(ctx)
		return "", fmt.Errorf("grant rds_replication to %s: %w", username, err)
	}

	rows, err := c.Query(ctx, `
		select datname from pg_database pgd
		inner join pg_roles pgr on pgr.oid = pgd.datdba
		where datistemplate = FALSE and datallowconn = TRUE and rolname <> 'rdsadmin';`)
	if err != nil {
		c.Close(ctx)
		return password, nil
	}

	var targetDBs []string
	for rows.Next() {
		var db string
		if err := rows.Scan(&db); err == nil {
			targetDBs = append(targetDBs, db)
		}
	}
	rows.Close()
	c.Close(ctx)

	for _, db := range targetDBs {
		dbConn := conn
		dbConn.Database = db
		if err := n.assignReplicationUser(ctx, dbConn, username); err != nil {
			logger.Warn("failed to assign replication user on database", "database", db, "error", err)
		}
	}

	return password, nil
}

func (n *NativeExecutor) assignReplicationUser(ctx context.Context, conn ConnInfo, username string) error {
	c, err := n.connect(ctx, conn)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	if _, err := c.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS pglogical;"); err != nil {
		return err
	}
	if _, err := c.Exec(ctx, fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA pglogical TO %s;", username)); err != nil {
		return err
	}

	schemas, err := n.listSchemas(ctx, c)
	if err != nil {
		return err
	}

	for _, schema := range schemas {
		statements := []string{
			fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s;", schema, username),
			fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA %s TO %s;", schema, username),
			fmt.Sprintf("GRANT SELECT ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, username),
		}
		for _, stmt := range statements {
			if _, err := c.Exec(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}
