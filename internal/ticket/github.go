// Package ticket creates support tickets as GitHub issues. The client is
// optional: when no token or repository is configured, callers are expected
// to degrade to a locally synthesized ticket instead of failing.
package ticket

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

const defaultBaseURL = "https://api.github.com"

// Issue identifies a created GitHub issue.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
	Title  string `json:"title"`
}

// Client creates issues in a single GitHub repository.
type Client struct {
	token      string
	repo       string // "owner/name"
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a ticket client for the given repository ("owner/name").
// Either argument may be empty, producing an unconfigured client.
func NewClient(token, repo string) *Client {
	return &Client{
		token:   token,
		repo:    repo,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom API base URL
// (GitHub Enterprise, testing).
func NewClientWithBaseURL(token, repo, baseURL string) *Client {
	c := NewClient(token, repo)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// IsConfigured reports whether the client has enough configuration to reach
// GitHub. Callers must check this before CreateIssue and fall back to a
// placeholder ticket when false.
func (c *Client) IsConfigured() bool {
	return c != nil && c.token != "" && strings.Count(c.repo, "/") == 1
}

type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// CreateIssue opens a new issue with the given title, body, and labels.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error) {
	if !c.IsConfigured() {
		return Issue{}, fmt.Errorf("ticket client not configured")
	}

	payload, err := json.Marshal(createIssueRequest{Title: title, Body: body, Labels: labels})
	if err != nil {
		return Issue{}, fmt.Errorf("marshaling issue: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues", c.baseURL, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Issue{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Issue{}, fmt.Errorf("creating issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return Issue{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var issue Issue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return Issue{}, fmt.Errorf("decoding issue: %w", err)
	}
	return issue, nil
}
