package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gojira "github.com/andygrunwald/go-jira"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justmike1/intern/logging"
)

// authMode controls how API requests are authenticated.
type authMode string

const (
	authBasic authMode = "basic"
	authOAuth authMode = "oauth"
)

// Atlassian OAuth 2.0 endpoints. Variables so tests can point them at a fake.
var (
	atlassianTokenURL        = "https://auth.atlassian.com/oauth/token"
	atlassianResourcesURL    = "https://api.atlassian.com/oauth/token/accessible-resources"
	atlassianOAuthAPIBaseURL = "https://api.atlassian.com/ex/jira"
)

const requestTimeout = 30 * time.Second

// DefaultIssueFields are requested when the caller does not narrow the field set.
var DefaultIssueFields = []string{
	"summary", "status", "description", "priority", "issuetype", "assignee",
	"reporter", "created", "updated", "labels", "subtasks", "issuelinks", "comment",
}

// Client provides access to the Jira Cloud REST API v3.
type Client struct {
	api     *gojira.Client
	siteURL string // human-readable site URL, used for browse links
	mode    authMode
}

// NewClient creates a Jira API client using Basic Auth (email + API token).
func NewClient(siteURL, email, apiToken string) (*Client, error) {
	cleanURL := strings.TrimRight(siteURL, "/")
	tp := gojira.BasicAuthTransport{Username: email, Password: apiToken}
	httpClient := tp.Client()
	httpClient.Timeout = requestTimeout

	api, err := gojira.NewClient(httpClient, cleanURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	return &Client{api: api, siteURL: cleanURL, mode: authBasic}, nil
}

// NewOAuthClient creates a Jira API client using OAuth 2.0 client credentials.
// Tokens are fetched and refreshed by the oauth2 transport. The Atlassian cloud
// ID for siteURL is resolved once and REST calls go through the OAuth gateway.
func NewOAuthClient(ctx context.Context, siteURL, clientID, clientSecret string, logger *slog.Logger) (*Client, error) {
	logger = logging.OrDiscard(logger)
	cleanURL := strings.TrimRight(siteURL, "/")

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     atlassianTokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The token source outlives ctx; only the initial fetch is bound to it.
	httpClient := oauth2.NewClient(context.WithoutCancel(ctx), cc.TokenSource(context.WithoutCancel(ctx)))
	httpClient.Timeout = requestTimeout

	cloudID, err := resolveCloudID(ctx, httpClient, cleanURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Atlassian cloud ID for %s: %w", cleanURL, err)
	}
	baseURL := fmt.Sprintf("%s/%s", atlassianOAuthAPIBaseURL, cloudID)
	logger.Info("jira OAuth cloud ID resolved", "site", cleanURL, "base_url", baseURL)

	api, err := gojira.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	return &Client{api: api, siteURL: cleanURL, mode: authOAuth}, nil
}

// resolveCloudID calls the Atlassian accessible-resources endpoint to find the
// cloud ID matching the configured site URL.
func resolveCloudID(ctx context.Context, httpClient *http.Client, siteURL string, logger *slog.Logger) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, atlassianResourcesURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("accessible-resources returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var resources []struct {
		ID   string `json:"id"`
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resources); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resources) == 0 {
		return "", errors.New("no accessible Atlassian sites found, ensure the OAuth app is authorized for your site")
	}

	siteNorm := strings.TrimRight(strings.ToLower(siteURL), "/")
	for _, r := range resources {
		if strings.TrimRight(strings.ToLower(r.URL), "/") == siteNorm {
			return r.ID, nil
		}
	}

	if len(resources) == 1 {
		logger.Warn("jira site URL did not match, using the only available site",
			"site", siteURL, "available", resources[0].URL, "cloud_id", resources[0].ID)
		return resources[0].ID, nil
	}

	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = fmt.Sprintf("%s (%s)", r.URL, r.ID)
	}
	return "", fmt.Errorf("site URL %q not found in accessible resources: %v", siteURL, names)
}

// AuthMode returns the authentication mode ("basic" or "oauth").
func (c *Client) AuthMode() string {
	return string(c.mode)
}

// SiteURL returns the site URL without a trailing slash.
func (c *Client) SiteURL() string {
	return c.siteURL
}

// BrowseURL returns the human-facing URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.siteURL, key)
}

// ListProjects returns every project visible to the authenticated user.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	list, resp, err := c.api.Project.GetListWithContext(ctx)
	if err != nil {
		return nil, wrapErr("list projects", "", resp, err)
	}
	projects := make([]Project, 0, len(*list))
	for _, p := range *list {
		projects = append(projects, Project{Key: p.Key, Name: p.Name})
	}
	return projects, nil
}

// FindIssue fetches an issue with DefaultIssueFields.
func (c *Client) FindIssue(ctx context.Context, key string) (*Issue, error) {
	return c.GetIssue(ctx, key, nil, nil)
}

// GetIssue fetches a single issue. An empty fields slice requests
// DefaultIssueFields.
func (c *Client) GetIssue(ctx context.Context, key string, fields, expand []string) (*Issue, error) {
	if len(fields) == 0 {
		fields = DefaultIssueFields
	}
	q := url.Values{}
	q.Set("fields", strings.Join(fields, ","))
	if len(expand) > 0 {
		q.Set("expand", strings.Join(expand, ","))
	}
	endpoint := fmt.Sprintf("rest/api/3/issue/%s?%s", url.PathEscape(key), q.Encode())

	var raw rawIssue
	if err := c.get(ctx, endpoint, &raw, "get issue", key); err != nil {
		return nil, err
	}
	return raw.toIssue(c.siteURL), nil
}

// GetChangelog fetches one page of an issue's change history starting at
// startAt.
func (c *Client) GetChangelog(ctx context.Context, key string, startAt int) (*ChangelogPage, error) {
	q := url.Values{}
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", "100")
	endpoint := fmt.Sprintf("rest/api/3/issue/%s/changelog?%s", url.PathEscape(key), q.Encode())

	var raw rawChangelog
	if err := c.get(ctx, endpoint, &raw, "get changelog", key); err != nil {
		return nil, err
	}
	return raw.toPage(), nil
}

func (c *Client) get(ctx context.Context, endpoint string, v any, op, key string) error {
	req, err := c.api.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Op: op, Key: key, Err: fmt.Errorf("create request: %w", err)}
	}
	resp, err := c.api.Do(req, v)
	if err != nil {
		if resp != nil && resp.Response != nil {
			defer func() { _ = resp.Body.Close() }()
			return wrapErr(op, key, resp, gojira.NewJiraError(resp, err))
		}
		return wrapErr(op, key, resp, err)
	}
	return nil
}
