package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

// ReplicaResult is the outcome of copying a dashboard into one account.
type ReplicaResult struct {
	AccountID int    `json:"accountId"`
	GUID      string `json:"guid,omitempty"`
	Error     string `json:"error,omitempty"`
}

// replicateConcurrency bounds parallel create mutations so one replication
// run cannot drain the rate limit budget.
const replicateConcurrency = 4

// Replicate copies a dashboard into each target account, rewriting widget
// query account bindings. Failed accounts are reported per replica rather
// than aborting the whole run.
func (s *Service) Replicate(ctx context.Context, guid string, targetAccounts []int) ([]ReplicaResult, error) {
	if len(targetAccounts) == 0 {
		return nil, &nerdgraph.ValidationError{Message: "at least one target account is required"}
	}

	source, err := s.api.GetDashboard(ctx, guid)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, &nerdgraph.ValidationError{Message: "dashboard not found: " + guid}
	}

	var (
		mu      sync.Mutex
		results []ReplicaResult
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(replicateConcurrency)

	for _, accountID := range targetAccounts {
		group.Go(func() error {
			replica := rebindAccount(*source, accountID)

			result := ReplicaResult{AccountID: accountID}
			ref, err := s.api.CreateDashboard(groupCtx, accountID, replica)
			if err != nil {
				result.Error = err.Error()
				s.logger.Warn("dashboard replica failed",
					zap.Int("account_id", accountID),
					zap.Error(err))
			} else {
				result.GUID = ref.GUID
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].AccountID < results[j].AccountID })
	return results, nil
}

// rebindAccount deep-copies a dashboard and points every widget query at
// the target account. GUIDs are cleared so the copy creates new entities.
func rebindAccount(source nerdgraph.Dashboard, accountID int) nerdgraph.Dashboard {
	copyDash := source
	copyDash.GUID = ""
	copyDash.Pages = make([]nerdgraph.DashboardPage, len(source.Pages))
	for i, page := range source.Pages {
		page.GUID = ""
		widgets := make([]nerdgraph.Widget, len(page.Widgets))
		for j, widget := range page.Widgets {
			widget.ID = ""
			queries := make([]nerdgraph.NRQLQuery, len(widget.RawConfiguration.NRQLQueries))
			for k, query := range widget.RawConfiguration.NRQLQueries {
				query.AccountID = accountID
				queries[k] = query
			}
			widget.RawConfiguration.NRQLQueries = queries
			widgets[j] = widget
		}
		page.Widgets = widgets
		copyDash.Pages[i] = page
	}
	return copyDash
}

// MigrationReport summarizes a replication run for operators.
type MigrationReport struct {
	SourceGUID string          `json:"sourceGuid"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Replicas   []ReplicaResult `json:"replicas"`
}

// BuildMigrationReport folds replica results into a summary.
func BuildMigrationReport(sourceGUID string, results []ReplicaResult) *MigrationReport {
	report := &MigrationReport{SourceGUID: sourceGUID, Replicas: results}
	for _, result := range results {
		if strings.TrimSpace(result.Error) == "" {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

// String renders the report for CLI output.
func (r *MigrationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "replicated %s: %d succeeded, %d failed\n", r.SourceGUID, r.Succeeded, r.Failed)
	for _, replica := range r.Replicas {
		if replica.Error != "" {
			fmt.Fprintf(&b, "  account %d: FAILED (%s)\n", replica.AccountID, replica.Error)
		} else {
			fmt.Fprintf(&b, "  account %d: %s\n", replica.AccountID, replica.GUID)
		}
	}
	return b.String()
}
