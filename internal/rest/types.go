package rest

import (
	"time"

	"github.com/namelens/guildrest/internal/core"
)

// User is the subset of a user object the client reads.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// Member is a user's membership in a guild.
type Member struct {
	User     *User     `json:"user,omitempty"`
	Nick     string    `json:"nick,omitempty"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// Emoji is a custom guild emoji.
type Emoji struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles,omitempty"`
	Animated  bool     `json:"animated,omitempty"`
	Available bool     `json:"available"`
}

// Guild is the subset of a guild object the client reads.
type Guild struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon,omitempty"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id"`
	Features    []string `json:"features,omitempty"`
	Emojis      []Emoji  `json:"emojis,omitempty"`
}

// OverwriteType tells whether an overwrite targets a role or a member.
type OverwriteType int

const (
	OverwriteRole   OverwriteType = 0
	OverwriteMember OverwriteType = 1
)

// Overwrite is a channel permission overwrite.
type Overwrite struct {
	ID    string          `json:"id"`
	Type  OverwriteType   `json:"type"`
	Allow core.Permission `json:"allow"`
	Deny  core.Permission `json:"deny"`
}

// Channel is the subset of a channel object the client reads.
type Channel struct {
	ID                   string      `json:"id"`
	Type                 int         `json:"type"`
	GuildID              string      `json:"guild_id,omitempty"`
	Name                 string      `json:"name,omitempty"`
	Topic                string      `json:"topic,omitempty"`
	Position             int         `json:"position,omitempty"`
	ParentID             string      `json:"parent_id,omitempty"`
	PermissionOverwrites []Overwrite `json:"permission_overwrites,omitempty"`
}

// Message is a channel message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Author    *User     `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStartLimit reports how many gateway sessions may still be started.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

// GatewayBot describes the recommended gateway connection.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// ModifyGuildParams holds the guild fields to change. Nil fields are left
// untouched.
type ModifyGuildParams struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// ListMembersParams pages through guild members.
type ListMembersParams struct {
	// Limit is capped at 1000 by the platform.
	Limit int
	After string
}

// ModifyChannelParams holds the channel fields to change.
type ModifyChannelParams struct {
	Name     *string `json:"name,omitempty"`
	Topic    *string `json:"topic,omitempty"`
	Position *int    `json:"position,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

// OverwriteParams is the body of a permission overwrite edit.
type OverwriteParams struct {
	Type  OverwriteType   `json:"type"`
	Allow core.Permission `json:"allow"`
	Deny  core.Permission `json:"deny"`
}

// MessageParams is the body of a new message.
type MessageParams struct {
	Content string `json:"content"`
	TTS     bool   `json:"tts,omitempty"`
}
