package rest

import (
	"context"
	"errors"
	"strings"

	"github.com/namelens/guildrest/internal/core/route"
)

const maxMessageLength = 2000

func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var channel Channel
	err := c.do(ctx, request{
		route:  route.GetChannel,
		params: route.Params{route.MajorChannel: channelID},
	}, &channel)
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *Client) ModifyChannel(ctx context.Context, channelID string, params ModifyChannelParams, reason string) (*Channel, error) {
	var channel Channel
	err := c.do(ctx, request{
		route:  route.ModifyChannel,
		params: route.Params{route.MajorChannel: channelID},
		body:   params,
		reason: reason,
	}, &channel)
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// EditChannelPermissions creates or replaces the overwrite for a role or
// member.
func (c *Client) EditChannelPermissions(ctx context.Context, channelID, overwriteID string, params OverwriteParams, reason string) error {
	if params.Allow&params.Deny != 0 {
		return errors.New("a permission cannot be both allowed and denied")
	}
	return c.do(ctx, request{
		route:  route.EditChannelPermissions,
		params: route.Params{route.MajorChannel: channelID, "overwrite.id": overwriteID},
		body:   params,
		reason: reason,
	}, nil)
}

func (c *Client) CreateMessage(ctx context.Context, channelID string, params MessageParams) (*Message, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, errors.New("message content is required")
	}
	if len([]rune(params.Content)) > maxMessageLength {
		return nil, errors.New("message content exceeds 2000 characters")
	}

	var message Message
	err := c.do(ctx, request{
		route:  route.CreateMessage,
		params: route.Params{route.MajorChannel: channelID},
		body:   params,
	}, &message)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var gateway GatewayBot
	if err := c.do(ctx, request{route: route.GetGatewayBot}, &gateway); err != nil {
		return nil, err
	}
	return &gateway, nil
}
