package nerdgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Region selects the NerdGraph endpoint.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"

	endpointUS = "https://api.newrelic.com/graphql"
	endpointEU = "https://api.eu.newrelic.com/graphql"

	defaultRequestTimeout = 120 * time.Second
)

// ParseRegion normalizes a region string, defaulting to US.
func ParseRegion(value string) (Region, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "US":
		return RegionUS, nil
	case "EU":
		return RegionEU, nil
	default:
		return "", &ValidationError{Message: fmt.Sprintf("unknown region %q (expected US or EU)", value)}
	}
}

// Endpoint returns the GraphQL URL for the region.
func (r Region) Endpoint() string {
	if r == RegionEU {
		return endpointEU
	}
	return endpointUS
}

// Request is one GraphQL request envelope. Immutable once built.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is the decoded GraphQL response envelope.
type Response struct {
	Data   json.RawMessage      `json:"data"`
	Errors []GraphQLErrorDetail `json:"errors"`
}

// DecodeData unmarshals the data payload into out.
func (r *Response) DecodeData(out any) error {
	if r == nil || len(r.Data) == 0 {
		return &ValidationError{Message: "response has no data to decode"}
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	APIKey     string
	Region     Region
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Transport issues GraphQL POST requests against a single endpoint and
// decodes the data/errors envelope. It performs no retries and no rate
// limiting; those live one layer up.
type Transport struct {
	url        string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// NewTransport creates a transport. The API key is required.
func NewTransport(opts TransportOptions) (*Transport, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &ValidationError{Message: "api key is required"}
	}

	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = opts.Region.Endpoint()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Transport{
		url:        url,
		apiKey:     opts.APIKey,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
	}, nil
}

// URL returns the endpoint the transport posts to.
func (t *Transport) URL() string {
	return t.url
}

// Send posts the request and decodes the response envelope. It returns a
// typed error: TransportError on network failure, RateLimitError on 429,
// APIError on any other non-2xx status, and an error classified from the
// errors array when the body carries GraphQL errors.
func (t *Transport) Send(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &ValidationError{Message: "query is required"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("API-Key", t.apiKey)
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Message: strings.TrimSpace(string(body))}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: truncateBody(body)}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode graphql response: %w", err)}
	}

	if err := classifyGraphQLErrors(resp.Errors); err != nil {
		return &resp, err
	}

	return &resp, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > limit {
		return trimmed[:limit] + "..."
	}
	return trimmed
}
