package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/namelens/guildrest/internal/config"
	"github.com/stretchr/testify/require"
)

func TestBuildLibsqlDSN(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		cfg     config.StoreConfig
		want    string
		wantErr bool
	}{
		{
			name: "turso url gets token",
			cfg:  config.StoreConfig{URL: "libsql://buckets.turso.io", AuthToken: "tok"},
			want: "libsql://buckets.turso.io?authToken=tok",
		},
		{
			name: "existing query kept",
			cfg:  config.StoreConfig{URL: "libsql://buckets.turso.io?tls=1", AuthToken: "tok"},
			want: "libsql://buckets.turso.io?authToken=tok&tls=1",
		},
		{
			name: "explicit token in url wins",
			cfg:  config.StoreConfig{URL: "libsql://buckets.turso.io?authToken=mine", AuthToken: "tok"},
			want: "libsql://buckets.turso.io?authToken=mine",
		},
		{
			name: "url without token untouched",
			cfg:  config.StoreConfig{URL: "libsql://buckets.turso.io"},
			want: "libsql://buckets.turso.io",
		},
		{
			name: "file prefix passthrough",
			cfg:  config.StoreConfig{Path: "file:" + filepath.Join(dir, "a.db")},
			want: "file:" + filepath.Join(dir, "a.db"),
		},
		{
			name: "bare path gains file prefix",
			cfg:  config.StoreConfig{Path: filepath.Join(dir, "nested", "b.db")},
			want: "file:" + filepath.Join(dir, "nested", "b.db"),
		},
		{name: "memory", cfg: config.StoreConfig{Path: ":memory:"}, want: ":memory:"},
		{name: "nothing configured", cfg: config.StoreConfig{}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dsn, err := buildLibsqlDSN(tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, dsn)
		})
	}

	require.DirExists(t, filepath.Join(dir, "nested"))
}

func TestOpenDisabledAndUnknownDrivers(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "none"})
	require.ErrorIs(t, err, ErrDisabled)

	_, err = Open(context.Background(), config.StoreConfig{Driver: "postgres"})
	require.ErrorContains(t, err, "unsupported store driver")
}

func TestBucketQuery(t *testing.T) {
	require.Error(t, BucketQuery{}.Validate())

	byKey := BucketQuery{Key: "GET /guilds/{guild.id}:1"}
	require.True(t, byKey.Match("GET /guilds/{guild.id}:1"))
	require.False(t, byKey.Match("GET /guilds/{guild.id}:2"))

	byPrefix := BucketQuery{Prefix: "GET /guilds/"}
	require.True(t, byPrefix.Match("GET /guilds/{guild.id}:2"))
	require.False(t, byPrefix.Match("POST /channels/{channel.id}/messages:9"))

	where, args, err := BucketQuery{Prefix: "GET /a_b%"}.whereClause()
	require.NoError(t, err)
	require.Contains(t, where, "LIKE")
	require.Equal(t, []any{`GET /a\_b\%%`}, args)

	require.True(t, BucketQuery{All: true}.Match("anything"))
}
