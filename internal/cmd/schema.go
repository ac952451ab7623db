package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrguardian/nrguardian/internal/output"
	"github.com/nrguardian/nrguardian/internal/schema"
	"github.com/nrguardian/nrguardian/internal/store"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Explore NRDB event type schemas",
}

// newSchemaService builds the service behind every schema subcommand. The
// keyset cache is attached when enabled; failures fall back to live queries.
func newSchemaService(cmd *cobra.Command) (*schema.Service, func(), error) {
	client, err := newClient()
	if err != nil {
		return nil, nil, err
	}

	opts := schema.ServiceOptions{
		Runner:    client,
		KeysetTTL: cfg.Cache.SchemaTTL,
		Logger:    logger,
	}

	cleanup := func() {}
	if cfg.Cache.Enabled {
		cache, err := store.Open(cmd.Context(), cfg.Store)
		if err == nil {
			if err := cache.Migrate(cmd.Context()); err == nil {
				opts.Store = cache
				cleanup = func() { _ = cache.Close() }
			} else {
				_ = cache.Close()
			}
		}
	}

	svc, err := schema.NewService(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

var schemaDiscoverCmd = &cobra.Command{
	Use:   "discover-event-types",
	Short: "List event types reporting to the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, cleanup, err := newSchemaService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		eventTypes, err := svc.DiscoverEventTypes(ctx, accountID)
		if err != nil {
			return err
		}

		rendered, err := output.FormatEventTypes(outputFormat(), eventTypes)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var schemaDescribeCmd = &cobra.Command{
	Use:   "describe-event-type <event-type>",
	Short: "Show the attribute keyset of an event type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, cleanup, err := newSchemaService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		described, err := svc.DescribeEventType(ctx, accountID, args[0])
		if err != nil {
			return err
		}

		rendered, err := output.FormatSchema(outputFormat(), described)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var schemaCompareCmd = &cobra.Command{
	Use:   "compare-schemas <event-type> <event-type>",
	Short: "Diff the attribute sets of two event types",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, cleanup, err := newSchemaService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		diff, err := svc.CompareSchemas(ctx, accountID, args[0], args[1])
		if err != nil {
			return err
		}

		rendered, err := output.FormatSchemaDiff(outputFormat(), diff)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate-attributes <event-type> <attribute>...",
	Short: "Check which attributes exist on an event type",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, cleanup, err := newSchemaService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		report, err := svc.ValidateAttributes(ctx, accountID, args[0], args[1:])
		if err != nil {
			return err
		}

		rendered, err := output.FormatValidationReport(outputFormat(), report)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		if len(report.Missing) > 0 {
			return fmt.Errorf("%d attributes missing from %s", len(report.Missing), report.EventType)
		}
		return nil
	},
}

var schemaFindCmd = &cobra.Command{
	Use:   "find-attribute <term>",
	Short: "Search event types for an attribute by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()

		svc, cleanup, err := newSchemaService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		matches, err := svc.FindAttribute(ctx, accountID, args[0], findEventTypes)
		if err != nil {
			return err
		}

		rendered, err := output.FormatAttributeMatches(outputFormat(), matches)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var findEventTypes []string

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(
		schemaDiscoverCmd,
		schemaDescribeCmd,
		schemaCompareCmd,
		schemaValidateCmd,
		schemaFindCmd,
	)

	schemaFindCmd.Flags().StringSliceVar(&findEventTypes, "event-type", nil, "restrict the search to these event types (repeatable)")
}
