package core

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Permission is a bitmask of channel and guild permissions.
//
// The platform serializes permissions as decimal strings, so JSON round trips
// use the string form.
type Permission uint64

const (
	PermissionCreateInstantInvite Permission = 1 << iota
	PermissionKickMembers
	PermissionBanMembers
	PermissionAdministrator
	PermissionManageChannels
	PermissionManageGuild
	PermissionAddReactions
	PermissionViewAuditLog
	PermissionPrioritySpeaker
	PermissionStream
	PermissionViewChannel
	PermissionSendMessages
	PermissionSendTTSMessages
	PermissionManageMessages
	PermissionEmbedLinks
	PermissionAttachFiles
	PermissionReadMessageHistory
	PermissionMentionEveryone
	PermissionUseExternalEmojis
	PermissionViewGuildInsights
	PermissionConnect
	PermissionSpeak
	PermissionMuteMembers
	PermissionDeafenMembers
	PermissionMoveMembers
	PermissionUseVAD
	PermissionChangeNickname
	PermissionManageNicknames
	PermissionManageRoles
	PermissionManageWebhooks
	PermissionManageGuildExpressions
)

var permissionNames = map[Permission]string{
	PermissionCreateInstantInvite:    "CREATE_INSTANT_INVITE",
	PermissionKickMembers:            "KICK_MEMBERS",
	PermissionBanMembers:             "BAN_MEMBERS",
	PermissionAdministrator:          "ADMINISTRATOR",
	PermissionManageChannels:         "MANAGE_CHANNELS",
	PermissionManageGuild:            "MANAGE_GUILD",
	PermissionAddReactions:           "ADD_REACTIONS",
	PermissionViewAuditLog:           "VIEW_AUDIT_LOG",
	PermissionPrioritySpeaker:        "PRIORITY_SPEAKER",
	PermissionStream:                 "STREAM",
	PermissionViewChannel:            "VIEW_CHANNEL",
	PermissionSendMessages:           "SEND_MESSAGES",
	PermissionSendTTSMessages:        "SEND_TTS_MESSAGES",
	PermissionManageMessages:         "MANAGE_MESSAGES",
	PermissionEmbedLinks:             "EMBED_LINKS",
	PermissionAttachFiles:            "ATTACH_FILES",
	PermissionReadMessageHistory:     "READ_MESSAGE_HISTORY",
	PermissionMentionEveryone:        "MENTION_EVERYONE",
	PermissionUseExternalEmojis:      "USE_EXTERNAL_EMOJIS",
	PermissionViewGuildInsights:      "VIEW_GUILD_INSIGHTS",
	PermissionConnect:                "CONNECT",
	PermissionSpeak:                  "SPEAK",
	PermissionMuteMembers:            "MUTE_MEMBERS",
	PermissionDeafenMembers:          "DEAFEN_MEMBERS",
	PermissionMoveMembers:            "MOVE_MEMBERS",
	PermissionUseVAD:                 "USE_VAD",
	PermissionChangeNickname:         "CHANGE_NICKNAME",
	PermissionManageNicknames:        "MANAGE_NICKNAMES",
	PermissionManageRoles:            "MANAGE_ROLES",
	PermissionManageWebhooks:         "MANAGE_WEBHOOKS",
	PermissionManageGuildExpressions: "MANAGE_GUILD_EXPRESSIONS",
}

// Has reports whether every bit in flags is set.
func (p Permission) Has(flags Permission) bool {
	return p&flags == flags
}

// Add returns p with flags set.
func (p Permission) Add(flags Permission) Permission {
	return p | flags
}

// Remove returns p with flags cleared.
func (p Permission) Remove(flags Permission) Permission {
	return p &^ flags
}

// String renders known flags joined by "|", lowest bit first.
func (p Permission) String() string {
	if p == 0 {
		return "NONE"
	}

	parts := make([]string, 0, bits.OnesCount64(uint64(p)))
	for rest := uint64(p); rest != 0; rest &= rest - 1 {
		flag := Permission(uint64(1) << bits.TrailingZeros64(rest))
		if name, ok := permissionNames[flag]; ok {
			parts = append(parts, name)
			continue
		}
		parts = append(parts, fmt.Sprintf("0x%x", uint64(flag)))
	}
	return strings.Join(parts, "|")
}

// ParsePermission parses the decimal string form used on the wire.
func ParsePermission(value string) (Permission, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid permission bitmask %q: %w", value, err)
	}
	return Permission(parsed), nil
}

// MarshalJSON encodes the bitmask as a decimal string.
func (p Permission) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(p), 10))
}

// UnmarshalJSON accepts both the decimal string and bare number forms.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := ParsePermission(text)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}

	var number uint64
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("invalid permission bitmask: %w", err)
	}
	*p = Permission(number)
	return nil
}
