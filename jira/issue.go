package jira

import (
	"encoding/json"
	"fmt"
)

// Project is a Jira project visible to the configured credentials.
type Project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Issue is the subset of a Jira issue the assistant reasons about. Fields
// absent from the response (because they were not requested, or are unset
// on the issue) are left empty.
type Issue struct {
	Key            string     `json:"key"`
	Browse         string     `json:"browse"`
	Summary        string     `json:"summary"`
	Status         string     `json:"status"`
	StatusCategory string     `json:"statusCategory,omitempty"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority,omitempty"`
	IssueType      string     `json:"issueType,omitempty"`
	Assignee       string     `json:"assignee,omitempty"`
	Reporter       string     `json:"reporter,omitempty"`
	Created        string     `json:"created,omitempty"`
	Updated        string     `json:"updated,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	Subtasks       []IssueRef `json:"subtasks,omitempty"`
	Links          []IssueRef `json:"links,omitempty"`
	Comments       []Comment  `json:"comments,omitempty"`
}

// IssueRef points at a related issue. Link is Slack mrkdwn.
type IssueRef struct {
	Key      string `json:"key"`
	Summary  string `json:"summary,omitempty"`
	Status   string `json:"status,omitempty"`
	Relation string `json:"relation,omitempty"`
	Link     string `json:"link"`
}

// Comment is a plain-text issue comment.
type Comment struct {
	Author  string `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
}

// ChangelogPage is one page of an issue's change history.
type ChangelogPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	IsLast     bool      `json:"isLast"`
	Histories  []History `json:"histories"`
}

// History groups the field changes made in a single edit.
type History struct {
	ID      string       `json:"id"`
	Author  string       `json:"author"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

type ChangeItem struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type named struct {
	Name string `json:"name"`
}

type person struct {
	DisplayName string `json:"displayName"`
}

func (p *person) name() string {
	if p == nil {
		return ""
	}
	return p.DisplayName
}

func (n *named) name() string {
	if n == nil {
		return ""
	}
	return n.Name
}

type rawRef struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  *named `json:"status"`
	} `json:"fields"`
}

type rawIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  *struct {
			Name           string `json:"name"`
			StatusCategory *named `json:"statusCategory"`
		} `json:"status"`
		Description json.RawMessage `json:"description"`
		Priority    *named          `json:"priority"`
		IssueType   *named          `json:"issuetype"`
		Assignee    *person         `json:"assignee"`
		Reporter    *person         `json:"reporter"`
		Created     string          `json:"created"`
		Updated     string          `json:"updated"`
		Labels      []string        `json:"labels"`
		Subtasks    []rawRef        `json:"subtasks"`
		IssueLinks  []struct {
			Type *struct {
				Name    string `json:"name"`
				Inward  string `json:"inward"`
				Outward string `json:"outward"`
			} `json:"type"`
			OutwardIssue *rawRef `json:"outwardIssue"`
			InwardIssue  *rawRef `json:"inwardIssue"`
		} `json:"issuelinks"`
		Comment *struct {
			Comments []struct {
				Author  *person         `json:"author"`
				Body    json.RawMessage `json:"body"`
				Created string          `json:"created"`
			} `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

type rawChangelog struct {
	StartAt    int  `json:"startAt"`
	MaxResults int  `json:"maxResults"`
	Total      int  `json:"total"`
	IsLast     bool `json:"isLast"`
	Values     []struct {
		ID      string  `json:"id"`
		Author  *person `json:"author"`
		Created string  `json:"created"`
		Items   []struct {
			Field      string `json:"field"`
			FromString string `json:"fromString"`
			ToString   string `json:"toString"`
		} `json:"items"`
	} `json:"values"`
}

// mrkdwnLink renders a browse link the way Slack expects it.
func mrkdwnLink(siteURL, key string) string {
	return fmt.Sprintf("<%s/browse/%s|%s>", siteURL, key, key)
}

func (r *rawRef) toRef(siteURL, relation string) IssueRef {
	return IssueRef{
		Key:      r.Key,
		Summary:  r.Fields.Summary,
		Status:   r.Fields.Status.name(),
		Relation: relation,
		Link:     mrkdwnLink(siteURL, r.Key),
	}
}

func (r *rawIssue) toIssue(siteURL string) *Issue {
	f := r.Fields
	issue := &Issue{
		Key:         r.Key,
		Browse:      fmt.Sprintf("%s/browse/%s", siteURL, r.Key),
		Summary:     f.Summary,
		Description: FirstParagraph(f.Description),
		Priority:    f.Priority.name(),
		IssueType:   f.IssueType.name(),
		Assignee:    f.Assignee.name(),
		Reporter:    f.Reporter.name(),
		Created:     f.Created,
		Updated:     f.Updated,
		Labels:      f.Labels,
	}
	if f.Status != nil {
		issue.Status = f.Status.Name
		issue.StatusCategory = f.Status.StatusCategory.name()
	}

	for i := range f.Subtasks {
		issue.Subtasks = append(issue.Subtasks, f.Subtasks[i].toRef(siteURL, "subtask"))
	}

	// Outward side first: a link is reported from this issue's point of view.
	for _, l := range f.IssueLinks {
		switch {
		case l.OutwardIssue != nil:
			rel := ""
			if l.Type != nil {
				rel = l.Type.Outward
			}
			issue.Links = append(issue.Links, l.OutwardIssue.toRef(siteURL, rel))
		case l.InwardIssue != nil:
			rel := ""
			if l.Type != nil {
				rel = l.Type.Inward
			}
			issue.Links = append(issue.Links, l.InwardIssue.toRef(siteURL, rel))
		}
	}

	if f.Comment != nil {
		for _, c := range f.Comment.Comments {
			issue.Comments = append(issue.Comments, Comment{
				Author:  c.Author.name(),
				Body:    PlainText(c.Body),
				Created: c.Created,
			})
		}
	}
	return issue
}

func (r *rawChangelog) toPage() *ChangelogPage {
	page := &ChangelogPage{
		StartAt:    r.StartAt,
		MaxResults: r.MaxResults,
		Total:      r.Total,
		IsLast:     r.IsLast,
		Histories:  make([]History, 0, len(r.Values)),
	}
	for _, v := range r.Values {
		h := History{ID: v.ID, Author: v.Author.name(), Created: v.Created}
		for _, it := range v.Items {
			h.Items = append(h.Items, ChangeItem{Field: it.Field, From: it.FromString, To: it.ToString})
		}
		page.Histories = append(page.Histories, h)
	}
	return page
}
