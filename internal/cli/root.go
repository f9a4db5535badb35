package cli

import (
	"log/slog"
	"os"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dbmigrate",
	Short: "Orchestrate PostgreSQL migrations from AWS RDS to GCP Cloud SQL",
	Long: `dbmigrate drives a service's PostgreSQL database through a managed
Database Migration Service job: pre-flight checks, continuous replication,
cutover, and post-migration cleanup.

It exposes the workflow over HTTP as the "serve" command, running one task
per (kind, service) and surfacing per-task logs and outcome.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("DEBUG") != "" {
			logger.Init(logger.Config{Level: slog.LevelDebug})
		}
		if err := initConfig(); err != nil && verbose {
			logger.Warn("error loading config", "error", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		_ = initConfig()
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dbmigrate.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet output (errors only)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	viper.SetEnvPrefix("dbmigrate")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dbmigrate")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		logger.Info("using config file", "path", viper.ConfigFileUsed())
	}

	return nil
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	return viper.GetBool("verbose")
}

// IsQuiet returns whether quiet mode is enabled
func IsQuiet() bool {
	return viper.GetBool("quiet")
}
