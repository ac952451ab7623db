// Package cmd implements the nrguardian command line interface.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/config"
	"github.com/nrguardian/nrguardian/internal/nerdgraph"
	"github.com/nrguardian/nrguardian/internal/observability"
	"github.com/nrguardian/nrguardian/internal/output"
)

var (
	cfgFile     string
	jsonOutput  bool
	verbose     bool
	quiet       bool
	flagAPIKey  string
	flagAccount int
	flagRegion  string

	cfg    *config.Config
	logger *zap.Logger

	// Version info set by the main package.
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by the main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "nrguardian",
	Short: "New Relic NerdGraph toolkit",
	Long: `nrguardian wraps the New Relic NerdGraph API: NRQL queries, schema
discovery, and dashboard generation, validation, and deployment.

Use the subcommands to perform specific operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/nrguardian/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error log output")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "New Relic API key (overrides NEW_RELIC_API_KEY)")
	rootCmd.PersistentFlags().IntVar(&flagAccount, "account-id", 0, "New Relic account id (overrides NEW_RELIC_ACCOUNT_ID)")
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "New Relic region, US or EU (overrides NEW_RELIC_REGION)")
}

// initConfig loads configuration and builds the CLI logger. Flag values
// take precedence over environment and file settings.
func initConfig() {
	logger = observability.NewCLILogger(verbose, quiet)

	loaded, err := config.Load(cfgFile)
	if err != nil {
		ExitConfigError("failed to load configuration", err)
	}

	if flagAPIKey != "" {
		loaded.APIKey = flagAPIKey
	}
	if flagAccount > 0 {
		loaded.AccountID = flagAccount
	}
	if flagRegion != "" {
		loaded.Region = flagRegion
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}

	cfg = loaded
}

// outputFormat resolves the output format from the --json flag.
func outputFormat() output.Format {
	if jsonOutput {
		return output.FormatJSON
	}
	return output.FormatTable
}

// newClient builds a NerdGraph client from the loaded configuration.
func newClient() (*nerdgraph.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region, err := nerdgraph.ParseRegion(cfg.Region)
	if err != nil {
		return nil, err
	}

	return nerdgraph.NewClient(nerdgraph.ClientOptions{
		APIKey:  cfg.APIKey,
		Region:  region,
		URL:     cfg.Client.EndpointOverride,
		Timeout: cfg.Client.Timeout,
		RateLimit: nerdgraph.RateLimit{
			MaxRequests: cfg.Client.RateLimitMax,
			Interval:    cfg.Client.RateLimitWindow,
		},
		Retry:     nerdgraph.NewRetryPolicy(cfg.Client.MaxRetries, cfg.Client.RetryBaseDelay, cfg.Client.RetryMaxDelay),
		UserAgent: userAgent(),
		Logger:    logger,
	})
}

func userAgent() string {
	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("nrguardian/%s", version)
}

// requireAccount returns the effective account id or exits.
func requireAccount() int {
	if err := cfg.RequireAccount(); err != nil {
		ExitConfigError("account id is required", err)
	}
	return cfg.AccountID
}

// commandTimeout bounds one CLI invocation end to end.
const commandTimeout = 5 * time.Minute
