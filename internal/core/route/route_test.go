package route

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveIgnoresMinorParams(t *testing.T) {
	c := DefaultCatalog()

	a, err := c.Resolve(http.MethodGet, "/guilds/{guild.id}/members/{user.id}", Params{"guild.id": "10", "user.id": "1"})
	require.NoError(t, err)
	b, err := c.Resolve(http.MethodGet, "/guilds/{guild.id}/members/{user.id}", Params{"guild.id": "10", "user.id": "2"})
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Equal(t, "GET /guilds/{guild.id}/members/{user.id}:10", a.String())
}

func TestResolveIsIdempotentAndMajorsDoNotCollide(t *testing.T) {
	c := DefaultCatalog()
	tmpl := "/channels/{channel.id}/messages"

	first := c.MustResolve(http.MethodPost, tmpl, Params{"channel.id": "1"})
	second := c.MustResolve(http.MethodPost, tmpl, Params{"channel.id": "1"})
	other := c.MustResolve(http.MethodPost, tmpl, Params{"channel.id": "2"})

	require.Equal(t, first, second)
	require.NotEqual(t, first, other)

	buckets := map[Key]int{first: 1}
	buckets[second]++
	buckets[other]++
	require.Len(t, buckets, 2)
}

func TestResolveMethodIsPartOfKey(t *testing.T) {
	c := DefaultCatalog()
	get := c.MustResolve(http.MethodGet, "/guilds/{guild.id}", Params{"guild.id": "7"})
	patch := c.MustResolve(http.MethodPatch, "/guilds/{guild.id}", Params{"guild.id": "7"})
	require.NotEqual(t, get, patch)
}

func TestResolveGlobalRouteHasNoMajor(t *testing.T) {
	c := DefaultCatalog()
	key, err := c.Resolve("get", "/gateway/bot", nil)
	require.NoError(t, err)
	require.Empty(t, key.Major)
	require.Equal(t, "GET /gateway/bot", key.String())
}

func TestResolveErrors(t *testing.T) {
	c := DefaultCatalog()

	_, err := c.Resolve(http.MethodGet, "/nope/{id}", nil)
	require.ErrorIs(t, err, ErrUnknownRoute)

	_, err = c.Resolve(http.MethodGet, "/guilds/{guild.id}", Params{})
	require.ErrorIs(t, err, ErrMissingParam)

	require.Panics(t, func() { c.MustResolve(http.MethodGet, "/nope", nil) })
}

func TestExpand(t *testing.T) {
	path, err := Expand("/guilds/{guild.id}/members/{user.id}", Params{"guild.id": "1", "user.id": "a/b"})
	require.NoError(t, err)
	require.Equal(t, "/guilds/1/members/a%2Fb", path)

	_, err = Expand("/guilds/{guild.id}", Params{})
	require.ErrorIs(t, err, ErrMissingParam)

	_, err = Expand("/guilds/{guild.id", Params{"guild.id": "1"})
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	c := DefaultCatalog()

	r, params, ok := c.Find(http.MethodPut, "/guilds/1/members/2/roles/3")
	require.True(t, ok)
	require.Equal(t, AddGuildMemberRole, r.Name)
	require.Equal(t, Params{"guild.id": "1", "user.id": "2", "role.id": "3"}, params)

	r, _, ok = c.Find(http.MethodGet, "/users/@me")
	require.True(t, ok)
	require.Equal(t, GetCurrentUser, r.Name)

	_, _, ok = c.Find(http.MethodGet, "/guilds/1/bans")
	require.False(t, ok)
}

func TestRegisterValidates(t *testing.T) {
	_, err := NewCatalog(Route{Name: "x", Method: "GET", Template: "/a/{b}", Major: "c"})
	require.Error(t, err)

	_, err = NewCatalog(Route{Name: "x", Method: "TRACE", Template: "/a"})
	require.Error(t, err)

	_, err = NewCatalog(Route{Method: "GET", Template: "/a"})
	require.Error(t, err)
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	content := `routes:
  - name: list_guild_bans
    method: get
    template: /guilds/{guild.id}/bans
    major: guild.id
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c := DefaultCatalog()
	n, err := LoadCatalogFile(c, path)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	r, ok := c.Lookup("list_guild_bans")
	require.True(t, ok)
	require.Equal(t, http.MethodGet, r.Method)

	key, err := c.Resolve(http.MethodGet, "/guilds/{guild.id}/bans", Params{"guild.id": "5"})
	require.NoError(t, err)
	require.Equal(t, "5", key.Major)

	n, err = LoadCatalogFile(c, "")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = LoadCatalogFile(c, filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
