package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/justmike1/intern/github"
	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/logging"
)

// ErrNoIssuesFound is returned by FetchBatch when there is nothing to fetch.
var ErrNoIssuesFound = errors.New("no issue keys found")

const (
	maxChangelogEntries = 10
	maxPullRequests     = 5
)

var statusFields = []string{"summary", "status"}

// IssueRecord is the outcome of fetching one key. Exactly one of Issue and
// Error is set.
type IssueRecord struct {
	Key   string      `json:"key"`
	Issue *jira.Issue `json:"issue,omitempty"`
	Error string      `json:"error,omitempty"`
}

// IntentResult is the outcome of executing one intent. It succeeded when
// Error is empty.
type IntentResult struct {
	Intent   string `json:"intent"`
	TicketID string `json:"ticketId,omitempty"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (r IntentResult) OK() bool { return r.Error == "" }

type StatusData struct {
	Key            string `json:"key"`
	Summary        string `json:"summary"`
	Status         string `json:"status"`
	StatusCategory string `json:"statusCategory,omitempty"`
	Link           string `json:"link"`
}

type DetailsData struct {
	*jira.Issue
	PullRequests []github.PullRequest `json:"pullRequests,omitempty"`
}

type ChangelogData struct {
	Key     string         `json:"key"`
	Link    string         `json:"link"`
	Total   int            `json:"total"`
	Entries []jira.History `json:"entries"`
}

// IssueService turns intents and key lists into Jira data. Failures are
// returned as values so a batch never aborts on one bad key.
type IssueService struct {
	tracker IssueTracker
	prs     PullRequestFinder
	logger  *slog.Logger
}

// NewIssueService builds the service. prs may be nil, in which case details
// carry no pull requests.
func NewIssueService(tracker IssueTracker, prs PullRequestFinder, logger *slog.Logger) *IssueService {
	return &IssueService{
		tracker: tracker,
		prs:     prs,
		logger:  logging.OrDiscard(logger).With("component", "issues"),
	}
}

// FetchBatch fetches every key concurrently and returns one record per key,
// in input order.
func (s *IssueService) FetchBatch(ctx context.Context, keys []string) ([]IssueRecord, error) {
	if len(keys) == 0 {
		return nil, ErrNoIssuesFound
	}
	records := iter.Map(keys, func(key *string) IssueRecord {
		issue, err := s.tracker.FindIssue(ctx, *key)
		if err != nil {
			s.logger.Warn("failed to fetch issue", "key", *key, "error", err)
			return IssueRecord{Key: *key, Error: issueReason(*key, err)}
		}
		return IssueRecord{Key: *key, Issue: shapeIssue(issue)}
	})
	return records, nil
}

// ExecuteIntents runs every intent concurrently. The result slice matches
// intents index for index.
func (s *IssueService) ExecuteIntents(ctx context.Context, intents []Intent) []IntentResult {
	return iter.Map(intents, func(in *Intent) IntentResult {
		return s.ExecuteIntent(ctx, *in)
	})
}

// ExecuteIntent dispatches on the intent name using its first parameter as
// the ticket key.
func (s *IssueService) ExecuteIntent(ctx context.Context, in Intent) IntentResult {
	key := strings.ToUpper(in.FirstParam())
	res := IntentResult{Intent: in.Name, TicketID: key}
	if key == "" {
		res.Error = "Missing required parameter: ticketId"
		return res
	}

	switch in.Name {
	case IntentGetStatus:
		issue, err := s.tracker.GetIssue(ctx, key, statusFields, nil)
		if err != nil {
			res.Error = issueReason(key, err)
			break
		}
		res.Data = StatusData{
			Key:            issue.Key,
			Summary:        issue.Summary,
			Status:         issue.Status,
			StatusCategory: issue.StatusCategory,
			Link:           issueLink(s.tracker.BrowseURL(issue.Key), issue.Key),
		}

	case IntentGetDetails:
		issue, err := s.tracker.FindIssue(ctx, key)
		if err != nil {
			res.Error = issueReason(key, err)
			break
		}
		res.Data = DetailsData{Issue: shapeIssue(issue), PullRequests: s.pullRequests(ctx, key)}

	case IntentGetChangelog:
		data, err := s.changelog(ctx, key)
		if err != nil {
			res.Error = changelogReason(key, err)
			break
		}
		res.Data = data

	default:
		res.Error = "Unknown intent: " + in.Name
	}

	if res.Error != "" {
		s.logger.Warn("intent failed", "intent", in.Name, "key", key, "reason", res.Error)
	}
	return res
}

func (s *IssueService) pullRequests(ctx context.Context, key string) []github.PullRequest {
	if s.prs == nil {
		return nil
	}
	prs, err := s.prs.FindPullRequests(ctx, key, maxPullRequests)
	if err != nil {
		s.logger.Warn("pull request lookup failed", "key", key, "error", err)
		return nil
	}
	return prs
}

// changelog returns the most recent entries, newest first. Jira pages the
// history oldest first, so a long history needs a second read of its tail.
func (s *IssueService) changelog(ctx context.Context, key string) (*ChangelogData, error) {
	page, err := s.tracker.GetChangelog(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	if !page.IsLast && page.MaxResults > 0 && page.Total > page.MaxResults {
		tail, err := s.tracker.GetChangelog(ctx, key, page.Total-page.MaxResults)
		if err != nil {
			return nil, err
		}
		page = tail
	}

	histories := page.Histories
	if len(histories) > maxChangelogEntries {
		histories = histories[len(histories)-maxChangelogEntries:]
	}
	entries := make([]jira.History, 0, len(histories))
	for i := len(histories) - 1; i >= 0; i-- {
		entries = append(entries, histories[i])
	}

	return &ChangelogData{
		Key:     key,
		Link:    issueLink(s.tracker.BrowseURL(key), key),
		Total:   page.Total,
		Entries: entries,
	}, nil
}

// shapeIssue fills the display defaults and keeps only the latest comment.
func shapeIssue(in *jira.Issue) *jira.Issue {
	out := *in
	if strings.TrimSpace(out.Description) == "" {
		out.Description = "No description"
	}
	if out.Assignee == "" {
		out.Assignee = "Unassigned"
	}
	if out.Reporter == "" {
		out.Reporter = "Unknown"
	}
	if out.Subtasks == nil {
		out.Subtasks = []jira.IssueRef{}
	}
	if out.Links == nil {
		out.Links = []jira.IssueRef{}
	}
	if n := len(out.Comments); n > 1 {
		out.Comments = out.Comments[n-1:]
	}
	return &out
}

// issueLink renders a Slack mrkdwn link labelled with the key.
func issueLink(url, key string) string {
	return fmt.Sprintf("<%s|%s>", url, key)
}

func issueReason(key string, err error) string {
	switch {
	case jira.IsNotFound(err):
		return fmt.Sprintf("Jira issue %s does not exist or you don't have permission to access it.", key)
	case jira.IsAuth(err):
		return fmt.Sprintf("Unable to access Jira issue %s due to authentication/authorization issues.", key)
	default:
		return fmt.Sprintf("Error accessing Jira issue %s: %s", key, upstreamMessage(err))
	}
}

func changelogReason(key string, err error) string {
	switch {
	case jira.IsNotFound(err):
		return fmt.Sprintf("Jira issue %s does not exist or you don't have permission to access it.", key)
	case jira.IsAuth(err):
		return fmt.Sprintf("Unable to access changelog for Jira issue %s due to authentication/authorization issues.", key)
	default:
		return fmt.Sprintf("Error accessing changelog for Jira issue %s: %s", key, upstreamMessage(err))
	}
}

func upstreamMessage(err error) string {
	var jerr *jira.Error
	if errors.As(err, &jerr) && jerr.Err != nil {
		return jerr.Err.Error()
	}
	return err.Error()
}
