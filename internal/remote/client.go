package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FishWoWater/meshtask/internal/resilience"
)

// Client talks to the mesh-generation service over HTTP. Every call carries
// the client's timeout and bounded retry policy; callers treat failures as
// transient and fall back to local state.
type Client struct {
	baseURL string
	http    *http.Client
	retry   resilience.Policy
}

func NewClient(baseURL string, timeout time.Duration, retry resilience.Policy) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

// JobStatus fetches the live status of one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var st JobStatus
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID)+"/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ResultInfo fetches the download descriptor for a completed job.
func (c *Client) ResultInfo(ctx context.Context, jobID string) (*ResultInfo, error) {
	var info ResultInfo
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID)+"/result", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// History fetches the job history, newest first, honoring the filter.
func (c *Client) History(ctx context.Context, f HistoryFilter) ([]HistoryRecord, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Feature != "" {
		q.Set("feature", f.Feature)
	}
	if !f.From.IsZero() {
		q.Set("start", f.From.Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("end", f.To.Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	path := "/api/jobs/history"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var resp struct {
		Jobs []HistoryRecord `json:"jobs"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// DownloadURL returns the download route for a job. It is the fallback result
// reference when the result-info endpoint is unavailable.
func (c *Client) DownloadURL(jobID string) string {
	return c.baseURL + "/api/jobs/" + url.PathEscape(jobID) + "/download"
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("remote request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("remote returned %d for %s", resp.StatusCode, path)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
