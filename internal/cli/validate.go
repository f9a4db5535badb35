package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homeport/dbmigrate/internal/clusteradapter"
	"github.com/homeport/dbmigrate/internal/config"
	"github.com/homeport/dbmigrate/internal/orchestrator"
	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

var (
	validateConfigStore string
	validateKubeconfig  string
)

var validateCmd = &cobra.Command{
	Use:   "validate <service>",
	Short: "Check a service's workload pod status after migration",
	Long: `Check that a service's workload in the orchestrator cluster reports a
single, healthy pod state ("running") and print the total restart count
across its pods.

This does not touch the migration state machine; it only reads cluster
state through the ClusterAdapter, the same check csm.py's validate_service
ran as an operator's final sanity pass after cutover.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateConfigStore, "config-store", "", "path to a YAML file-backed ConfigStore; if empty, uses the in-cluster ConfigMap store")
	validateCmd.Flags().StringVar(&validateKubeconfig, "kubeconfig", "", "path to a kubeconfig file; if empty, uses in-cluster config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	service := args[0]

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	clientset, err := buildKubeClientset(validateKubeconfig)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}

	var store config.Store
	if validateConfigStore != "" {
		store, err = config.NewFileStore(validateConfigStore)
	} else {
		store, err = config.NewClusterStore(ctx, clientset, serveClusterName, serveNamespace)
	}
	if err != nil {
		return fmt.Errorf("build config store: %w", err)
	}

	cluster := clusteradapter.NewK8sClient(clientset)
	orch := orchestrator.New(store, nil, nil, cluster, nil)

	cfg, err := store.Get(service)
	if err != nil {
		return err
	}

	if err := orch.ValidateService(ctx, service); err != nil {
		return err
	}

	podStatus, err := cluster.PodStatus(ctx, cfg.MustGet("k8s-namespace"), cfg.MustGet("k8s-service"))
	if err != nil {
		return err
	}

	if !IsQuiet() {
		logger.Info("service is healthy", "service", service, "restarts", podStatus.Restarts)
	}
	fmt.Printf("%s: running, %d pod restart(s)\n", service, podStatus.Restarts)
	return nil
}
