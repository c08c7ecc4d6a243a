package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// DefaultAPIURL is the public endpoint of the table store.
const DefaultAPIURL = "https://api.airtable.com"

// ClientConfig represents the configuration for the table store client.
type ClientConfig struct {
	APIURL            string
	Token             string
	Timeout           time.Duration // Default: 30 seconds
	RequestsPerSecond float64       // Default: 5, the store's per-base limit; negative disables
	HTTPClient        *http.Client
}

// Client talks to the table store on behalf of one tenant token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

// NewClient creates a new table store client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	rps := config.RequestsPerSecond
	if rps == 0 {
		rps = 5
	}
	limit := rate.Limit(rps)
	if rps < 0 {
		limit = rate.Inf
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(apiURL, "/"),
		token:      config.Token,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// ListRecords fetches every record of a table, following pagination offsets.
func (c *Client) ListRecords(ctx context.Context, baseID, tableName string, opts ListOptions) (table.RecordSet, error) {
	var all table.RecordSet
	offset := ""

	for {
		query := opts.query()
		if offset != "" {
			query.Set("offset", offset)
		}

		var page ListResponse
		if err := c.do(ctx, http.MethodGet, c.tableURL(baseID, tableName, "")+"?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Records...)

		if page.Offset == "" {
			break
		}
		if opts.MaxRecords > 0 && len(all) >= opts.MaxRecords {
			break
		}
		offset = page.Offset
	}

	if opts.MaxRecords > 0 && len(all) > opts.MaxRecords {
		all = all[:opts.MaxRecords]
	}
	return all, nil
}

// CreateRecord creates a record and returns it as stored.
func (c *Client) CreateRecord(ctx context.Context, baseID, tableName string, fields map[string]any) (table.Record, error) {
	var rec table.Record
	err := c.do(ctx, http.MethodPost, c.tableURL(baseID, tableName, ""), RecordRequest{Fields: fields}, &rec)
	return rec, err
}

// UpdateRecord patches the given fields of a record.
func (c *Client) UpdateRecord(ctx context.Context, baseID, tableName, recordID string, fields map[string]any) (table.Record, error) {
	var rec table.Record
	err := c.do(ctx, http.MethodPatch, c.tableURL(baseID, tableName, recordID), RecordRequest{Fields: fields}, &rec)
	return rec, err
}

// DeleteRecord deletes a record.
func (c *Client) DeleteRecord(ctx context.Context, baseID, tableName, recordID string) error {
	var resp DeleteResponse
	return c.do(ctx, http.MethodDelete, c.tableURL(baseID, tableName, recordID), nil, &resp)
}

// ListTables returns the table names of a base.
func (c *Client) ListTables(ctx context.Context, baseID string) ([]string, error) {
	var resp TablesResponse
	endpoint := fmt.Sprintf("%s/v0/meta/bases/%s/tables", c.baseURL, url.PathEscape(baseID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Tables))
	for _, t := range resp.Tables {
		names = append(names, t.Name)
	}
	return names, nil
}

func (c *Client) tableURL(baseID, tableName, recordID string) string {
	endpoint := fmt.Sprintf("%s/v0/%s/%s", c.baseURL, url.PathEscape(baseID), url.PathEscape(tableName))
	if recordID != "" {
		endpoint += "/" + url.PathEscape(recordID)
	}
	return endpoint
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	for _, f := range o.Fields {
		q.Add("fields[]", f)
	}
	if o.Formula != "" {
		q.Set("filterByFormula", o.Formula)
	}
	if o.MaxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(o.MaxRecords))
	}
	if o.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(o.PageSize))
	}
	for i, s := range o.Sort {
		q.Set(fmt.Sprintf("sort[%d][field]", i), s.Field)
		if s.Direction != "" {
			q.Set(fmt.Sprintf("sort[%d][direction]", i), s.Direction)
		}
	}
	if o.View != "" {
		q.Set("view", o.View)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError parses an error response from the table store.
func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Type = errResp.Error.Type
	apiErr.Message = errResp.Error.Message
	return apiErr
}
