package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nrguardian/nrguardian/internal/dashboard"
	"github.com/nrguardian/nrguardian/internal/output"
	"github.com/nrguardian/nrguardian/internal/templates"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Manage New Relic dashboards",
}

// newDashboardService builds the service behind every dashboard subcommand.
func newDashboardService() (*dashboard.Service, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return dashboard.NewService(client, logger)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), commandTimeout)
}

var dashboardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dashboards in the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		entities, err := svc.List(ctx, accountID, dashboardListLimit)
		if err != nil {
			return err
		}

		rendered, err := output.FormatEntities(outputFormat(), entities)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var dashboardTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the built-in dashboard templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := templates.Names()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var dashboardGenerateCmd = &cobra.Command{
	Use:   "generate <template>",
	Short: "Generate a dashboard from a template",
	Long: `Generate a dashboard definition from a built-in template and print
it without deploying. Use --deploy to create it in New Relic.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		req := dashboard.GenerateRequest{
			Template:  args[0],
			AccountID: accountID,
			Name:      dashboardName,
		}

		if dashboardDeploy {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			ref, err := svc.GenerateAndDeploy(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("deployed dashboard %s (%s)\n", ref.Name, ref.GUID)
			return nil
		}

		generated, err := svc.Generate(req)
		if err != nil {
			return err
		}

		data, err := dashboard.Marshal(*generated, exportFormatOrJSON())
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var dashboardExportCmd = &cobra.Command{
	Use:   "export <guid>",
	Short: "Export a dashboard as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		format, err := dashboard.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		data, err := svc.Export(ctx, args[0], format)
		if err != nil {
			return err
		}

		if exportFile != "" {
			return os.WriteFile(exportFile, data, 0644)
		}
		fmt.Println(string(data))
		return nil
	},
}

var dashboardImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a dashboard definition and deploy it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		format, err := formatFromFile(args[0], exportFormat)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		ref, err := svc.Import(ctx, accountID, data, format)
		if err != nil {
			return err
		}
		fmt.Printf("imported dashboard %s (%s)\n", ref.Name, ref.GUID)
		return nil
	},
}

var dashboardDeleteCmd = &cobra.Command{
	Use:   "delete <guid>",
	Short: "Delete a dashboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		if err := svc.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted dashboard %s\n", args[0])
		return nil
	},
}

var dashboardValidateJSONCmd = &cobra.Command{
	Use:   "validate-json <file>",
	Short: "Validate a dashboard definition file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		format, err := formatFromFile(args[0], exportFormat)
		if err != nil {
			return err
		}

		parsed, err := dashboard.Unmarshal(data, format)
		if err != nil {
			return err
		}

		report := dashboard.Validate(*parsed)
		rendered, err := output.FormatDashboardValidation(outputFormat(), report)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		if !report.Valid {
			return fmt.Errorf("dashboard failed validation with %d errors", len(report.Errors))
		}
		return nil
	},
}

var dashboardValidateWidgetsCmd = &cobra.Command{
	Use:   "validate-widgets <guid>",
	Short: "Validate the widget layout and queries of a deployed dashboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		report, err := svc.ValidateWidgets(ctx, args[0])
		if err != nil {
			return err
		}
		rendered, err := output.FormatDashboardValidation(outputFormat(), report)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		if !report.Valid {
			return fmt.Errorf("dashboard failed validation with %d errors", len(report.Errors))
		}
		return nil
	},
}

var dashboardBrokenCmd = &cobra.Command{
	Use:   "find-broken-widgets <guid>",
	Short: "Find widgets whose queries fail or return no data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		broken, err := svc.FindBrokenWidgets(ctx, args[0])
		if err != nil {
			return err
		}

		rendered, err := output.FormatBrokenWidgets(outputFormat(), broken)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var dashboardAnalyzeCmd = &cobra.Command{
	Use:   "analyze-performance <guid>",
	Short: "Analyze a dashboard for slow query patterns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		report, err := svc.AnalyzePerformance(ctx, args[0])
		if err != nil {
			return err
		}

		rendered, err := output.FormatPerformanceReport(outputFormat(), report)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var dashboardReplicateCmd = &cobra.Command{
	Use:   "replicate <guid>",
	Short: "Copy a dashboard into other accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(replicateAccounts) == 0 {
			return fmt.Errorf("at least one --to account is required")
		}

		svc, err := newDashboardService()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		results, err := svc.Replicate(ctx, args[0], replicateAccounts)
		if err != nil {
			return err
		}

		report := dashboard.BuildMigrationReport(args[0], results)
		fmt.Print(report.String())

		if report.Failed > 0 {
			return fmt.Errorf("%d of %d replicas failed", report.Failed, len(results))
		}
		return nil
	},
}

var (
	dashboardListLimit int
	dashboardName      string
	dashboardDeploy    bool
	exportFormat       string
	exportFile         string
	replicateAccounts  []int
)

// exportFormatOrJSON resolves --format falling back to JSON for generate.
func exportFormatOrJSON() dashboard.Format {
	format, err := dashboard.ParseFormat(exportFormat)
	if err != nil {
		return dashboard.FormatJSON
	}
	return format
}

// formatFromFile infers the serialization format from the file extension
// unless an explicit format was given.
func formatFromFile(path, explicit string) (dashboard.Format, error) {
	if strings.TrimSpace(explicit) != "" {
		return dashboard.ParseFormat(explicit)
	}
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return dashboard.FormatYAML, nil
	default:
		return dashboard.FormatJSON, nil
	}
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.AddCommand(
		dashboardListCmd,
		dashboardTemplatesCmd,
		dashboardGenerateCmd,
		dashboardExportCmd,
		dashboardImportCmd,
		dashboardDeleteCmd,
		dashboardValidateJSONCmd,
		dashboardValidateWidgetsCmd,
		dashboardBrokenCmd,
		dashboardAnalyzeCmd,
		dashboardReplicateCmd,
	)

	dashboardListCmd.Flags().IntVar(&dashboardListLimit, "limit", 50, "maximum dashboards to list")
	dashboardGenerateCmd.Flags().StringVar(&dashboardName, "name", "", "override the template dashboard name")
	dashboardGenerateCmd.Flags().BoolVar(&dashboardDeploy, "deploy", false, "deploy the generated dashboard")
	dashboardExportCmd.Flags().StringVar(&exportFormat, "format", "", "serialization format: json or yaml")
	dashboardExportCmd.Flags().StringVar(&exportFile, "out", "", "write to file instead of stdout")
	dashboardImportCmd.Flags().StringVar(&exportFormat, "format", "", "serialization format: json or yaml")
	dashboardValidateJSONCmd.Flags().StringVar(&exportFormat, "format", "", "serialization format: json or yaml")
	dashboardReplicateCmd.Flags().IntSliceVar(&replicateAccounts, "to", nil, "target account id (repeatable)")
}
