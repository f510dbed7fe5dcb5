// Package github implements the remote pipeline collaborators against the
// GitHub Actions REST API: workflow dispatch to trigger a run, run listing to
// probe whether one is still active, and artifact lookup for downloads.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

// DefaultAPIBase is the public GitHub REST endpoint.
const DefaultAPIBase = "https://api.github.com"

// Config identifies the workflow that runs the pipeline.
type Config struct {
	Owner    string
	Repo     string
	Workflow string
	// Ref is the branch or tag dispatched; defaults to "main".
	Ref   string
	Token string
	// APIBase overrides the endpoint, mainly for tests.
	APIBase string
	Timeout time.Duration
}

// Client calls the GitHub Actions API for one configured workflow.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" || cfg.Workflow == "" {
		return nil, fmt.Errorf("ci owner, repo and workflow are required")
	}
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// TriggerRun dispatches the workflow. Not idempotent; the controller calls it
// at most once per allowed run.
func (c *Client) TriggerRun(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		c.cfg.APIBase, c.cfg.Owner, c.cfg.Repo, c.cfg.Workflow)
	body, err := json.Marshal(map[string]string{"ref": c.cfg.Ref})
	if err != nil {
		return fmt.Errorf("marshal dispatch body: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("dispatch workflow: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// IsRunning reports whether any run of the workflow is queued or in progress.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	for _, status := range []string{"in_progress", "queued"} {
		n, err := c.countRuns(ctx, status)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// LatestArtifact returns the newest artifact of the repository, or nil when
// none exists.
func (c *Client) LatestArtifact(ctx context.Context) (*pipeline.Artifact, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/artifacts?per_page=1",
		c.cfg.APIBase, c.cfg.Owner, c.cfg.Repo)
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list artifacts: unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		Artifacts []struct {
			Name               string    `json:"name"`
			SizeInBytes        int64     `json:"size_in_bytes"`
			ArchiveDownloadURL string    `json:"archive_download_url"`
			Expired            bool      `json:"expired"`
			CreatedAt          time.Time `json:"created_at"`
		} `json:"artifacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	for _, a := range payload.Artifacts {
		if a.Expired {
			continue
		}
		return &pipeline.Artifact{
			Name:        a.Name,
			DownloadURL: a.ArchiveDownloadURL,
			SizeBytes:   a.SizeInBytes,
			CreatedAt:   a.CreatedAt,
		}, nil
	}
	return nil, nil
}

func (c *Client) countRuns(ctx context.Context, status string) (int, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/runs?status=%s&per_page=1",
		c.cfg.APIBase, c.cfg.Owner, c.cfg.Repo, c.cfg.Workflow, url.QueryEscape(status))
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("list %s runs: unexpected status %d", status, resp.StatusCode)
	}
	var payload struct {
		TotalCount int `json:"total_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode %s runs: %w", status, err)
	}
	return payload.TotalCount, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call github: %w", err)
	}
	return resp, nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
