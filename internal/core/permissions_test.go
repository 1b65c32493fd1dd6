package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissionSetAndTest(t *testing.T) {
	perms := PermissionViewChannel.Add(PermissionSendMessages)
	require.True(t, perms.Has(PermissionViewChannel))
	require.True(t, perms.Has(PermissionViewChannel|PermissionSendMessages))
	require.False(t, perms.Has(PermissionManageRoles))

	perms = perms.Remove(PermissionSendMessages)
	require.False(t, perms.Has(PermissionSendMessages))
	require.Equal(t, "VIEW_CHANNEL", perms.String())
}

func TestPermissionString(t *testing.T) {
	require.Equal(t, "NONE", Permission(0).String())
	require.Equal(t, "KICK_MEMBERS|BAN_MEMBERS", (PermissionBanMembers | PermissionKickMembers).String())
	require.Equal(t, "0x8000000000000000", Permission(1<<63).String())
}

func TestPermissionJSON(t *testing.T) {
	data, err := json.Marshal(PermissionAdministrator | PermissionManageGuild)
	require.NoError(t, err)
	require.Equal(t, `"40"`, string(data))

	var decoded Permission
	require.NoError(t, json.Unmarshal([]byte(`"2048"`), &decoded))
	require.Equal(t, PermissionSendMessages, decoded)

	require.NoError(t, json.Unmarshal([]byte(`1024`), &decoded))
	require.Equal(t, PermissionViewChannel, decoded)

	require.Error(t, json.Unmarshal([]byte(`"nope"`), &decoded))
}

func TestBucketStateExhaustedAtReset(t *testing.T) {
	now := mustTime(t, "2025-01-01T00:00:00Z")
	state := BucketState{Limit: 5, Remaining: 0, ResetAt: now.Add(1)}
	require.True(t, state.Exhausted(now))
	require.False(t, state.Exhausted(now.Add(2)))

	state.Remaining = 1
	require.False(t, state.Exhausted(now))
}
