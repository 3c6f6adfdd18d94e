// Package census fetches American Community Survey tract tables and derives
// the per-tract metric datasets overlays read.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/tract-overlays/internal/resilience"
)

// Query selects every tract of one county for one ACS 5-year vintage.
type Query struct {
	Year   int
	State  string
	County string
}

// Prefix returns the state and county FIPS codes joined, e.g. "06037".
func (q Query) Prefix() string { return q.State + q.County }

// Table is an ACS response: a header row and one row per tract. The
// geography columns state, county and tract are always present.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// GEOID returns the 11-digit tract identifier of row i.
func (t *Table) GEOID(i int) string {
	row := t.Rows[i]
	return row[t.Index("state")] + row[t.Index("county")] + row[t.Index("tract")]
}

// Client defines the ACS operations.
type Client interface {
	// Tracts fetches the given variables for every tract matching q.
	Tracts(ctx context.Context, q Query, vars []string) (*Table, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimiter overrides the default 5 req/s limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates an ACS client. apiKey may be empty for low-volume use.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.census.gov/data",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Tracts(ctx context.Context, q Query, vars []string) (*Table, error) {
	if len(vars) == 0 {
		return nil, eris.New("census: no variables requested")
	}

	params := url.Values{
		"get": {strings.Join(vars, ",")},
		"for": {"tract:*"},
		"in":  {fmt.Sprintf("state:%s county:%s", q.State, q.County)},
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/%d/acs/acs5?%s", c.baseURL, q.Year, params.Encode())

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("census", strings.Join(vars, ","))
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Table, error) {
		return c.fetch(ctx, reqURL)
	})
}

func (c *httpClient) fetch(ctx context.Context, reqURL string) (*Table, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "census: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "census: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "census: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "census: read body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("census: status %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("census: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return decodeTable(body)
}

// decodeTable parses the ACS array-of-arrays format. Cells are strings or
// null; nulls become empty strings.
func decodeTable(body []byte) (*Table, error) {
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "census: parse response")
	}
	if len(raw) == 0 {
		return nil, eris.New("census: empty response")
	}

	t := &Table{Header: make([]string, len(raw[0]))}
	for i, h := range raw[0] {
		t.Header[i] = cellString(h)
	}
	for _, col := range []string{"state", "county", "tract"} {
		if t.Index(col) < 0 {
			return nil, eris.Errorf("census: response missing %q column", col)
		}
	}

	t.Rows = make([][]string, 0, len(raw)-1)
	for n, r := range raw[1:] {
		if len(r) != len(t.Header) {
			return nil, eris.Errorf("census: row %d has %d cells, header has %d", n+1, len(r), len(t.Header))
		}
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = cellString(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
