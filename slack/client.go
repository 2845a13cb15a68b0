package slack

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
)

type Client struct {
	api *slack.Client
}

// NewClient creates a Web API client for the bot token. opts are passed to
// slack-go (tests use slack.OptionAPIURL).
func NewClient(botToken string, opts ...slack.Option) *Client {
	return &Client{api: slack.New(botToken, opts...)}
}

// PostThreadReply posts text into the thread rooted at threadTS and returns
// the new message's timestamp.
func (c *Client) PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false), slack.MsgOptionTS(threadTS))
	if err != nil {
		return "", fmt.Errorf("failed to post thread reply: %w", err)
	}
	return ts, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	if _, _, err := c.api.DeleteMessageContext(ctx, channelID, ts); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", ts, err)
	}
	return nil
}

// FetchThreadReplies returns the root message and its replies in a single
// call of up to limit messages.
func (c *Client) FetchThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]slack.Message, error) {
	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread replies: %w", err)
	}
	return msgs, nil
}

// GetUserInfo returns profile information for a Slack user by their user ID.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*slack.User, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return user, nil
}

// GetUserName resolves a user id to the name people see in Slack.
func (c *Client) GetUserName(ctx context.Context, userID string) (string, error) {
	user, err := c.GetUserInfo(ctx, userID)
	if err != nil {
		return "", err
	}
	return DisplayName(user), nil
}

// DisplayName prefers the profile display name, then the real name, then the
// handle.
func DisplayName(u *slack.User) string {
	if u == nil {
		return ""
	}
	switch {
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.RealName != "":
		return u.RealName
	case u.Profile.RealName != "":
		return u.Profile.RealName
	default:
		return u.Name
	}
}

// GetBotUserID returns the Slack user ID of the bot token.
func (c *Client) GetBotUserID(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to call auth.test: %w", err)
	}
	return resp.UserID, nil
}

// JoinPublicChannels joins every non-archived public channel the bot is not
// yet a member of. It returns how many channels were joined; per-channel
// failures are collected and do not stop the sweep.
func (c *Client) JoinPublicChannels(ctx context.Context) (int, error) {
	var (
		joined int
		errs   []error
		cursor string
	)
	for {
		channels, next, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			ExcludeArchived: true,
			Limit:           200,
			Cursor:          cursor,
		})
		if err != nil {
			return joined, fmt.Errorf("failed to list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.IsMember {
				continue
			}
			if _, _, _, err := c.api.JoinConversationContext(ctx, ch.ID); err != nil {
				errs = append(errs, fmt.Errorf("join %s: %w", ch.Name, err))
				continue
			}
			joined++
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return joined, errors.Join(errs...)
}
