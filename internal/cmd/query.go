package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
	"github.com/nrguardian/nrguardian/internal/output"
	"github.com/nrguardian/nrguardian/internal/store"
)

var queryNoCache bool

var queryCmd = &cobra.Command{
	Use:   "query <nrql>",
	Short: "Run an NRQL query",
	Long: `Run an NRQL query against the configured account and print the
result rows. Results are cached locally when the cache is enabled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := requireAccount()
		nrql := strings.Join(args, " ")

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		result, err := runCachedNRQL(ctx, accountID, nrql)
		if err != nil {
			return err
		}

		rendered, err := output.FormatNRQLResult(outputFormat(), result)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

// runCachedNRQL consults the local result cache before hitting NerdGraph.
// Cache failures degrade to a direct query.
func runCachedNRQL(ctx context.Context, accountID int, nrql string) (*nerdgraph.NRQLResult, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	useCache := cfg.Cache.Enabled && !queryNoCache
	var cache *store.Store
	if useCache {
		cache, err = store.Open(ctx, cfg.Store)
		if err != nil {
			logger.Debug("result cache unavailable", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
			if err := cache.Migrate(ctx); err != nil {
				logger.Debug("result cache migration failed", zap.Error(err))
				cache = nil
			}
		}
	}

	if cache != nil {
		if raw, err := cache.GetCachedQueryResult(ctx, accountID, nrql); err == nil && raw != nil {
			var cached nerdgraph.NRQLResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				logger.Debug("query served from cache")
				return &cached, nil
			}
		}
	}

	result, err := client.RunNRQL(ctx, accountID, nrql)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if raw, err := json.Marshal(result); err == nil {
			if err := cache.SetCachedQueryResult(ctx, accountID, nrql, raw, cfg.Cache.ResultTTL); err != nil {
				logger.Debug("result cache write failed", zap.Error(err))
			}
		}
	}

	return result, nil
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryNoCache, "no-cache", false, "bypass the local result cache")
}
