package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

const defaultPRLimit = 5

type Client struct {
	api *gh.Client
	org string
}

// NewClient authenticates with a static token. When org is set, searches are
// scoped to that organization.
func NewClient(token, org string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &Client{api: gh.NewClient(httpClient), org: org}
}

// PullRequest holds the essentials of a pull request that mentions an issue.
type PullRequest struct {
	Number int    `json:"number"`
	Repo   string `json:"repo"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// FindPullRequests returns the most recently updated pull requests whose
// title or body mention issueKey.
func (c *Client) FindPullRequests(ctx context.Context, issueKey string, limit int) ([]PullRequest, error) {
	if limit <= 0 || limit > 30 {
		limit = defaultPRLimit
	}
	q := fmt.Sprintf("%q type:pr in:title,body", issueKey)
	if c.org != "" {
		q += " org:" + c.org
	}

	res, _, err := c.api.Search.Issues(ctx, q, &gh.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search PRs for %s: %w", issueKey, err)
	}

	prs := make([]PullRequest, 0, len(res.Issues))
	for _, is := range res.Issues {
		if !is.IsPullRequest() {
			continue
		}
		prs = append(prs, PullRequest{
			Number: is.GetNumber(),
			Repo:   repoFromAPIURL(is.GetRepositoryURL()),
			Title:  is.GetTitle(),
			State:  is.GetState(),
			Author: is.GetUser().GetLogin(),
			URL:    is.GetHTMLURL(),
		})
		if len(prs) == limit {
			break
		}
	}
	return prs, nil
}

// repoFromAPIURL turns https://api.github.com/repos/owner/repo into owner/repo.
func repoFromAPIURL(u string) string {
	if i := strings.Index(u, "/repos/"); i >= 0 {
		return u[i+len("/repos/"):]
	}
	return u
}
