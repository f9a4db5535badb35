package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	crm "google.golang.org/api/cloudresourcemanager/v1"
	dms "google.golang.org/api/datamigration/v1"
	sqladmin "google.golang.org/api/sqladmin/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/homeport/dbmigrate/internal/api"
	"github.com/homeport/dbmigrate/internal/cloudadapter"
	"github.com/homeport/dbmigrate/internal/clusteradapter"
	"github.com/homeport/dbmigrate/internal/config"
	"github.com/homeport/dbmigrate/internal/orchestrator"
	"github.com/homeport/dbmigrate/internal/pkg/logger"
	"github.com/homeport/dbmigrate/pkg/version"
)

var (
	servePort        int
	serveHost        string
	serveConfigStore string
	serveClusterName string
	serveNamespace   string
	serveKubeconfig  string
	serveSQLStrategy string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the migration control plane HTTP server",
	Long: `Run the long-lived control-plane process that drives per-service
PostgreSQL migrations from AWS RDS to GCP Cloud SQL.

It exposes one task per (kind, service): preflight, sync, cutover, cleanup,
and a dummy liveness worker, each runnable, pollable, and cancellable over
HTTP.

Examples:
  dbmigrate serve                                   # ConfigMap-backed store, in-cluster
  dbmigrate serve --config-store ./services.yaml    # file-backed store, local dev
  dbmigrate serve --port 9090 --sql-strategy shell`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to serve on")
	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "0.0.0.0", "host to bind to")
	serveCmd.Flags().StringVar(&serveConfigStore, "config-store", "", "path to a YAML file-backed ConfigStore; if empty, uses the in-cluster ConfigMap store")
	serveCmd.Flags().StringVar(&serveClusterName, "configmap-name", "dbmigrate-services", "ConfigMap name for the cluster-backed ConfigStore")
	serveCmd.Flags().StringVar(&serveNamespace, "namespace", "default", "namespace of the ConfigStore ConfigMap and migrated workloads")
	serveCmd.Flags().StringVar(&serveKubeconfig, "kubeconfig", "", "path to a kubeconfig file; if empty, uses in-cluster config")
	serveCmd.Flags().StringVar(&serveSQLStrategy, "sql-strategy", "native", "SQL execution strategy: native (pgx) or shell (psql subprocess)")

	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	clientset, err := buildKubeClientset(serveKubeconfig)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}

	store, err := buildConfigStore(ctx, clientset)
	if err != nil {
		return fmt.Errorf("build config store: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}
	source := cloudadapter.NewAWSSource(awsCfg)

	projectsSvc, err := crm.NewService(ctx)
	if err != nil {
		return fmt.Errorf("build cloud resource manager client: %w", err)
	}
	dmsSvc, err := dms.NewService(ctx)
	if err != nil {
		return fmt.Errorf("build database migration service client: %w", err)
	}
	sqlSvc, err := sqladmin.NewService(ctx)
	if err != nil {
		return fmt.Errorf("build cloud sql admin client: %w", err)
	}
	target := cloudadapter.NewGCPTarget(projectsSvc, dmsSvc, sqlSvc)

	cluster := clusteradapter.NewK8sClient(clientset)

	var sql clusteradapter.SQLExecutor
	switch serveSQLStrategy {
	case "shell":
		sql = clusteradapter.NewShellExecutor()
	case "native", "":
		sql = clusteradapter.NewNativeExecutor()
	default:
		return fmt.Errorf("unknown sql-strategy %q (want native or shell)", serveSQLStrategy)
	}

	orch := orchestrator.New(store, source, target, cluster, sql)

	server := api.NewServer(api.Config{
		Host:    serveHost,
		Port:    servePort,
		Verbose: IsVerbose(),
		Version: version.Version,
	}, orch)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// buildKubeClientset follows the standard client-go bootstrap: in-cluster
// config when running as a pod, falling back to a kubeconfig file
// (explicit flag, then $HOME/.kube/config) for local development.
func buildKubeClientset(kubeconfigPath string) (kubernetes.Interface, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return kubernetes.NewForConfig(cfg)
	}

	if kubeconfigPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}

	restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

func buildConfigStore(ctx context.Context, clientset kubernetes.Interface) (config.Store, error) {
	if serveConfigStore != "" {
		return config.NewFileStore(serveConfigStore)
	}
	return config.NewClusterStore(ctx, clientset, serveClusterName, serveNamespace)
}
