package route

import "net/http"

// Built-in route names.
const (
	GetGatewayBot          = "get_gateway_bot"
	GetCurrentUser         = "get_current_user"
	GetGuild               = "get_guild"
	ModifyGuild            = "modify_guild"
	ListGuildMembers       = "list_guild_members"
	GetGuildMember         = "get_guild_member"
	ModifyGuildMember      = "modify_guild_member"
	AddGuildMemberRole     = "add_guild_member_role"
	RemoveGuildMemberRole  = "remove_guild_member_role"
	ListGuildEmojis        = "list_guild_emojis"
	GetChannel             = "get_channel"
	ModifyChannel          = "modify_channel"
	EditChannelPermissions = "edit_channel_permissions"
	CreateMessage          = "create_message"
	ExecuteWebhook         = "execute_webhook"
)

// Major parameter names.
const (
	MajorGuild   = "guild.id"
	MajorChannel = "channel.id"
	MajorWebhook = "webhook.id"
)

// DefaultRoutes lists the built-in route templates.
var DefaultRoutes = []Route{
	{Name: GetGatewayBot, Method: http.MethodGet, Template: "/gateway/bot"},
	{Name: GetCurrentUser, Method: http.MethodGet, Template: "/users/@me"},
	{Name: GetGuild, Method: http.MethodGet, Template: "/guilds/{guild.id}", Major: MajorGuild},
	{Name: ModifyGuild, Method: http.MethodPatch, Template: "/guilds/{guild.id}", Major: MajorGuild},
	{Name: ListGuildMembers, Method: http.MethodGet, Template: "/guilds/{guild.id}/members", Major: MajorGuild},
	{Name: GetGuildMember, Method: http.MethodGet, Template: "/guilds/{guild.id}/members/{user.id}", Major: MajorGuild},
	{Name: ModifyGuildMember, Method: http.MethodPatch, Template: "/guilds/{guild.id}/members/{user.id}", Major: MajorGuild},
	{Name: AddGuildMemberRole, Method: http.MethodPut, Template: "/guilds/{guild.id}/members/{user.id}/roles/{role.id}", Major: MajorGuild},
	{Name: RemoveGuildMemberRole, Method: http.MethodDelete, Template: "/guilds/{guild.id}/members/{user.id}/roles/{role.id}", Major: MajorGuild},
	{Name: ListGuildEmojis, Method: http.MethodGet, Template: "/guilds/{guild.id}/emojis", Major: MajorGuild},
	{Name: GetChannel, Method: http.MethodGet, Template: "/channels/{channel.id}", Major: MajorChannel},
	{Name: ModifyChannel, Method: http.MethodPatch, Template: "/channels/{channel.id}", Major: MajorChannel},
	{Name: EditChannelPermissions, Method: http.MethodPut, Template: "/channels/{channel.id}/permissions/{overwrite.id}", Major: MajorChannel},
	{Name: CreateMessage, Method: http.MethodPost, Template: "/channels/{channel.id}/messages", Major: MajorChannel},
	{Name: ExecuteWebhook, Method: http.MethodPost, Template: "/webhooks/{webhook.id}/{webhook.token}", Major: MajorWebhook},
}

// DefaultCatalog returns a catalog holding DefaultRoutes.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRoutes...)
	if err != nil {
		panic(err)
	}
	return c
}
