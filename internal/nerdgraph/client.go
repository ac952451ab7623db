package nerdgraph

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	APIKey     string
	Region     Region
	URL        string
	Timeout    time.Duration
	RateLimit  RateLimit
	Retry      *RetryPolicy
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client exposes typed NerdGraph operations. Every call routes through the
// rate limiter, then the retry controller, then the transport; the limiter
// gates each individual attempt, not just the first.
type Client struct {
	transport *Transport
	limiter   *RateLimiter
	retry     *RetryPolicy
	logger    *zap.Logger
}

// NewClient creates a client from explicit options. There is no implicit
// global instance; callers construct one and pass it down.
func NewClient(opts ClientOptions) (*Client, error) {
	transport, err := NewTransport(TransportOptions{
		APIKey:     opts.APIKey,
		Region:     opts.Region,
		URL:        opts.URL,
		Timeout:    opts.Timeout,
		UserAgent:  opts.UserAgent,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	retry := opts.Retry
	if retry == nil {
		policy := DefaultRetryPolicy
		retry = &policy
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		transport: transport,
		limiter:   NewRateLimiter(opts.RateLimit),
		retry:     retry,
		logger:    logger,
	}, nil
}

// NewClientWithTransport wires an already-built transport, used by tests
// and by the batcher.
func NewClientWithTransport(transport *Transport, limiter *RateLimiter, retry *RetryPolicy, logger *zap.Logger) *Client {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit)
	}
	if retry == nil {
		policy := DefaultRetryPolicy
		retry = &policy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: transport, limiter: limiter, retry: retry, logger: logger}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Send runs one raw GraphQL request through the limiter and retry policy.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var sendErr error
		resp, sendErr = c.transport.Send(ctx, req)
		if sendErr != nil {
			c.logger.Debug("nerdgraph request failed",
				zap.String("endpoint", c.transport.URL()),
				zap.Error(sendErr))
		}
		return sendErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RunNRQL executes an NRQL query against one account.
func (c *Client) RunNRQL(ctx context.Context, accountID int, nrql string) (*NRQLResult, error) {
	if accountID <= 0 {
		return nil, &ValidationError{Message: "account id is required"}
	}
	if strings.TrimSpace(nrql) == "" {
		return nil, &ValidationError{Message: "nrql query is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query: queryNRQL,
		Variables: map[string]any{
			"accountId": accountID,
			"nrql":      nrql,
		},
	})
	if err != nil {
		var gqlErr *GraphQLError
		if errors.As(err, &gqlErr) && mentionsInvalidNRQL(gqlErr) {
			return nil, &QueryError{NRQL: nrql, Message: gqlErr.Errors[0].Message}
		}
		return nil, err
	}

	var payload struct {
		Actor struct {
			Account struct {
				NRQL NRQLResult `json:"nrql"`
			} `json:"account"`
		} `json:"actor"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return nil, err
	}

	return &payload.Actor.Account.NRQL, nil
}

// GetDashboard fetches a dashboard by GUID. A missing entity returns
// (nil, nil), not an error.
func (c *Client) GetDashboard(ctx context.Context, guid string) (*Dashboard, error) {
	if strings.TrimSpace(guid) == "" {
		return nil, &ValidationError{Message: "dashboard guid is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query:     queryDashboard,
		Variables: map[string]any{"guid": guid},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Actor struct {
			Entity *Dashboard `json:"entity"`
		} `json:"actor"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return nil, err
	}

	entity := payload.Actor.Entity
	if entity == nil || entity.GUID == "" {
		return nil, nil
	}
	return entity, nil
}

// CreateDashboard creates a dashboard in the account. Rejections reported
// through the mutation's own errors field surface as a MutationError and
// are never retried.
func (c *Client) CreateDashboard(ctx context.Context, accountID int, dashboard Dashboard) (*DashboardRef, error) {
	if accountID <= 0 {
		return nil, &ValidationError{Message: "account id is required"}
	}
	if strings.TrimSpace(dashboard.Name) == "" {
		return nil, &ValidationError{Message: "dashboard name is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query: mutationCreateDashboard,
		Variables: map[string]any{
			"accountId": accountID,
			"dashboard": dashboardInput(dashboard, accountID),
		},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		DashboardCreate struct {
			EntityResult *DashboardRef         `json:"entityResult"`
			Errors       []MutationErrorDetail `json:"errors"`
		} `json:"dashboardCreate"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return nil, err
	}

	if len(payload.DashboardCreate.Errors) > 0 {
		return nil, &MutationError{Operation: "dashboardCreate", Errors: payload.DashboardCreate.Errors}
	}
	if payload.DashboardCreate.EntityResult == nil {
		return nil, &GraphQLError{Errors: []GraphQLErrorDetail{{Message: "dashboardCreate returned no entity"}}}
	}
	return payload.DashboardCreate.EntityResult, nil
}

// UpdateDashboard replaces a dashboard identified by GUID. Mirrors the
// create contract.
func (c *Client) UpdateDashboard(ctx context.Context, guid string, dashboard Dashboard) (*DashboardRef, error) {
	if strings.TrimSpace(guid) == "" {
		return nil, &ValidationError{Message: "dashboard guid is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query: mutationUpdateDashboard,
		Variables: map[string]any{
			"guid":      guid,
			"dashboard": dashboardInput(dashboard, 0),
		},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		DashboardUpdate struct {
			EntityResult *DashboardRef         `json:"entityResult"`
			Errors       []MutationErrorDetail `json:"errors"`
		} `json:"dashboardUpdate"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return nil, err
	}

	if len(payload.DashboardUpdate.Errors) > 0 {
		return nil, &MutationError{Operation: "dashboardUpdate", Errors: payload.DashboardUpdate.Errors}
	}
	if payload.DashboardUpdate.EntityResult == nil {
		return nil, &GraphQLError{Errors: []GraphQLErrorDetail{{Message: "dashboardUpdate returned no entity"}}}
	}
	return payload.DashboardUpdate.EntityResult, nil
}

// DeleteDashboard deletes a dashboard by GUID.
func (c *Client) DeleteDashboard(ctx context.Context, guid string) error {
	if strings.TrimSpace(guid) == "" {
		return &ValidationError{Message: "dashboard guid is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query:     mutationDeleteDashboard,
		Variables: map[string]any{"guid": guid},
	})
	if err != nil {
		return err
	}

	var payload struct {
		DashboardDelete struct {
			Status string                `json:"status"`
			Errors []MutationErrorDetail `json:"errors"`
		} `json:"dashboardDelete"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return err
	}

	if len(payload.DashboardDelete.Errors) > 0 {
		return &MutationError{Operation: "dashboardDelete", Errors: payload.DashboardDelete.Errors}
	}
	return nil
}

// SearchEntities runs an entitySearch query and returns up to limit
// results. A non-positive limit returns everything.
func (c *Client) SearchEntities(ctx context.Context, query string, limit int) ([]Entity, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Message: "entity search query is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query:     queryEntitySearch,
		Variables: map[string]any{"query": query},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Actor struct {
			EntitySearch struct {
				Results struct {
					Entities []struct {
						GUID       string `json:"guid"`
						Name       string `json:"name"`
						EntityType string `json:"entityType"`
						Domain     string `json:"domain"`
						AccountID  int    `json:"accountId"`
					} `json:"entities"`
				} `json:"results"`
			} `json:"entitySearch"`
		} `json:"actor"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return nil, err
	}

	raw := payload.Actor.EntitySearch.Results.Entities
	entities := make([]Entity, 0, len(raw))
	for _, e := range raw {
		entities = append(entities, Entity{
			GUID:      e.GUID,
			Name:      e.Name,
			Type:      e.EntityType,
			Domain:    e.Domain,
			AccountID: e.AccountID,
		})
		if limit > 0 && len(entities) >= limit {
			break
		}
	}
	return entities, nil
}

// GetAlertPolicies lists alert policies for an account.
func (c *Client) GetAlertPolicies(ctx context.Context, accountID int) ([]AlertPolicy, error) {
	if accountID <= 0 {
		return nil, &ValidationError{Message: "account id is required"}
	}

	resp, err := c.Send(ctx, Request{
		Query:     queryAlertPolicies,
		Variables: map[string]any{"accountId": accountID},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Actor struct {
			Account struct {
				Alerts struct {
					PoliciesSearch struct {
						Policies []AlertPolicy `json:"policies"`
					} `json:"policiesSearch"`
				} `json:"alerts"`
			} `json:"account"`
		} `json:"actor"`
	}
	if err := resp.DecodeData(&payload); err != nil {
		return nil, err
	}

	return payload.Actor.Account.Alerts.PoliciesSearch.Policies, nil
}

// dashboardInput converts a Dashboard into the mutation input shape,
// stripping server-assigned identifiers and defaulting widget accounts.
func dashboardInput(d Dashboard, accountID int) map[string]any {
	permissions := d.Permissions
	if permissions == "" {
		permissions = "PUBLIC_READ_WRITE"
	}

	pages := make([]map[string]any, 0, len(d.Pages))
	for _, page := range d.Pages {
		widgets := make([]map[string]any, 0, len(page.Widgets))
		for _, widget := range page.Widgets {
			queries := make([]NRQLQuery, 0, len(widget.RawConfiguration.NRQLQueries))
			for _, query := range widget.RawConfiguration.NRQLQueries {
				if query.AccountID == 0 {
					query.AccountID = accountID
				}
				queries = append(queries, query)
			}
			config := widget.RawConfiguration
			config.NRQLQueries = queries

			entry := map[string]any{
				"title":            widget.Title,
				"visualization":    map[string]any{"id": widget.Visualization.ID},
				"rawConfiguration": config,
			}
			if widget.Layout != (WidgetLayout{}) {
				entry["layout"] = widget.Layout
			}
			widgets = append(widgets, entry)
		}

		entry := map[string]any{
			"name":    page.Name,
			"widgets": widgets,
		}
		if page.Description != "" {
			entry["description"] = page.Description
		}
		pages = append(pages, entry)
	}

	input := map[string]any{
		"name":        d.Name,
		"permissions": permissions,
		"pages":       pages,
	}
	if d.Description != "" {
		input["description"] = d.Description
	}
	return input
}

func mentionsInvalidNRQL(err *GraphQLError) bool {
	for _, detail := range err.Errors {
		msg := strings.ToLower(detail.Message)
		if strings.Contains(msg, "nrql") && (strings.Contains(msg, "syntax") || strings.Contains(msg, "invalid")) {
			return true
		}
	}
	return false
}
