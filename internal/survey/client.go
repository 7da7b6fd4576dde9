package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grove-data/canopy.report/internal/httputil"
	"github.com/grove-data/canopy.report/internal/monitoring"
	"github.com/grove-data/canopy.report/internal/timeutil"
)

// ErrNotFound indicates the provider has no data for the requested orchard or
// survey.
var ErrNotFound = errors.New("survey data not found")

// ErrProvider wraps non-retryable provider failures.
var ErrProvider = errors.New("survey provider error")

// Default retry behavior for transient provider failures.
const (
	DefaultMaxAttempts = 3
	DefaultMinWait     = 4 * time.Second
	DefaultMaxWait     = 10 * time.Second
)

// Client fetches survey data from the farming API. Server errors and
// transport failures are retried with exponential backoff; client errors are
// not. Safe for concurrent use.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
	APIKey     string

	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration

	// Clock drives the backoff timers. Nil means wall-clock time; tests
	// substitute a timeutil.MockClock.
	Clock timeutil.Clock
}

// NewClient creates a provider client. A nil httpClient gets a standard
// client with a 30s timeout.
func NewClient(httpClient httputil.HTTPClient, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &Client{
		HTTPClient:  httpClient,
		BaseURL:     baseURL,
		APIKey:      apiKey,
		MaxAttempts: DefaultMaxAttempts,
		MinWait:     DefaultMinWait,
		MaxWait:     DefaultMaxWait,
		Clock:       timeutil.RealClock{},
	}
}

// pagedSurveys is the provider's paginated survey listing.
type pagedSurveys struct {
	Count   int      `json:"count"`
	Next    *string  `json:"next"`
	Results []Survey `json:"results"`
}

// pagedTrees is the provider's paginated tree listing.
type pagedTrees struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []TreeRecord `json:"results"`
}

// SurveyByOrchard returns the most recent survey for the orchard.
func (c *Client) SurveyByOrchard(ctx context.Context, orchardID int64) (Survey, error) {
	var page pagedSurveys
	path := fmt.Sprintf("/farming/surveys/?orchard_id=%d", orchardID)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return Survey{}, err
	}
	if len(page.Results) == 0 {
		return Survey{}, fmt.Errorf("%w: no surveys for orchard %d", ErrNotFound, orchardID)
	}
	// The provider lists newest first.
	return page.Results[0], nil
}

// SurveyStats returns the survey-level summary statistics.
func (c *Client) SurveyStats(ctx context.Context, surveyID int64) (Stats, error) {
	var stats Stats
	path := fmt.Sprintf("/farming/surveys/%d/tree_survey_summaries/", surveyID)
	if err := c.getJSON(ctx, path, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Trees returns the per-tree records of a survey.
func (c *Client) Trees(ctx context.Context, surveyID int64) ([]TreeRecord, error) {
	var page pagedTrees
	path := fmt.Sprintf("/farming/surveys/%d/tree_surveys/", surveyID)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// getJSON performs a GET with auth headers, retrying transient failures.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return err
			}
			monitoring.Logf("survey: retrying %s (attempt %d/%d)", path, attempt+1, attempts)
		}

		retryable, err := c.tryGetJSON(ctx, path, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// tryGetJSON performs a single request. The bool reports whether the failure
// is worth retrying: transport errors and 5xx yes, client errors no.
func (c *Client) tryGetJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("%w: decoding %s: %v", ErrProvider, path, err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, string(body))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, string(body))
	}
}

// backoff returns the wait before the given retry attempt, doubling from
// MinWait and capped at MaxWait.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.MinWait
	if d <= 0 {
		d = DefaultMinWait
	}
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if c.MaxWait > 0 && d > c.MaxWait {
		d = c.MaxWait
	}
	return d
}

// wait sleeps for the attempt's backoff interval unless the context ends
// first.
func (c *Client) wait(ctx context.Context, attempt int) error {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	t := clock.NewTimer(c.backoff(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
