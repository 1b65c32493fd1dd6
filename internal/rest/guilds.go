package rest

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/namelens/guildrest/internal/core/route"
)

const maxMembersPerPage = 1000

func (c *Client) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	var guild Guild
	err := c.do(ctx, request{
		route:  route.GetGuild,
		params: route.Params{route.MajorGuild: guildID},
	}, &guild)
	if err != nil {
		return nil, err
	}
	return &guild, nil
}

func (c *Client) ModifyGuild(ctx context.Context, guildID string, params ModifyGuildParams, reason string) (*Guild, error) {
	var guild Guild
	err := c.do(ctx, request{
		route:  route.ModifyGuild,
		params: route.Params{route.MajorGuild: guildID},
		body:   params,
		reason: reason,
	}, &guild)
	if err != nil {
		return nil, err
	}
	return &guild, nil
}

// ListGuildMembers returns one page of members ordered by user ID.
func (c *Client) ListGuildMembers(ctx context.Context, guildID string, params ListMembersParams) ([]Member, error) {
	if params.Limit < 0 || params.Limit > maxMembersPerPage {
		return nil, errors.New("member limit must be between 1 and 1000")
	}

	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.After != "" {
		query.Set("after", params.After)
	}

	var members []Member
	err := c.do(ctx, request{
		route:  route.ListGuildMembers,
		params: route.Params{route.MajorGuild: guildID},
		query:  query,
	}, &members)
	return members, err
}

func (c *Client) GetGuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	var member Member
	err := c.do(ctx, request{
		route:  route.GetGuildMember,
		params: route.Params{route.MajorGuild: guildID, "user.id": userID},
	}, &member)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) AddGuildMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return c.do(ctx, request{
		route:  route.AddGuildMemberRole,
		params: memberRoleParams(guildID, userID, roleID),
		reason: reason,
	}, nil)
}

func (c *Client) RemoveGuildMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return c.do(ctx, request{
		route:  route.RemoveGuildMemberRole,
		params: memberRoleParams(guildID, userID, roleID),
		reason: reason,
	}, nil)
}

func (c *Client) ListGuildEmojis(ctx context.Context, guildID string) ([]Emoji, error) {
	var emojis []Emoji
	err := c.do(ctx, request{
		route:  route.ListGuildEmojis,
		params: route.Params{route.MajorGuild: guildID},
	}, &emojis)
	return emojis, err
}

func memberRoleParams(guildID, userID, roleID string) route.Params {
	return route.Params{route.MajorGuild: guildID, "user.id": userID, "role.id": roleID}
}
