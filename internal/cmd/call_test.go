package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/require"

	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
)

func resetCallFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		callBody, callReason, callQuery = "", "", nil
	})
}

func TestParseKeyValues(t *testing.T) {
	values, err := parseKeyValues([]string{"guild.id=1", "user.id=2=3"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"guild.id": "1", "user.id": "2=3"}, values)

	_, err = parseKeyValues([]string{"guild.id"})
	require.Error(t, err)
	_, err = parseKeyValues([]string{"=1"})
	require.Error(t, err)
}

func TestReadBody(t *testing.T) {
	body, err := readBody(`{"content":"hi"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"content":"hi"}`, string(body))

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"g"}`), 0o600))
	body, err = readBody("@" + path)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"g"}`, string(body))

	_, err = readBody("not json")
	require.Error(t, err)

	body, err = readBody("  ")
	require.NoError(t, err)
	require.Nil(t, body)
}

func TestBuildCall(t *testing.T) {
	resetCallFlags(t)
	callBody = `{"content":"hello"}`
	callReason = "audit"
	callQuery = []string{"wait=true"}

	call, err := buildCall(route.DefaultCatalog(), route.CreateMessage, []string{"channel.id=42"})
	require.NoError(t, err)
	require.Equal(t, "/channels/42/messages", call.Path)
	require.Equal(t, "42", call.Key.Major)
	require.Equal(t, "true", call.Query.Get("wait"))
	require.Equal(t, "audit", call.Reason)
	require.JSONEq(t, `{"content":"hello"}`, string(call.Body))
}

func TestBuildCallErrors(t *testing.T) {
	resetCallFlags(t)
	catalog := route.DefaultCatalog()

	_, err := buildCall(catalog, "no_such_route", nil)
	require.ErrorIs(t, err, route.ErrUnknownRoute)

	_, err = buildCall(catalog, route.GetGuild, nil)
	require.ErrorIs(t, err, route.ErrMissingParam)
}

func TestNewCallReport(t *testing.T) {
	header := http.Header{}
	header.Set(engine.HeaderRemaining, "4")
	header.Set("Server", "x")
	res := engine.Result{StatusCode: 200, Body: []byte(`{"id":"1"}`), Header: header}
	report := newCallReport(route.GetGuild, res)
	require.Equal(t, map[string]string{engine.HeaderRemaining: "4"}, report.Headers)
	require.JSONEq(t, `{"id":"1"}`, string(report.Body))

	report = newCallReport(route.GetGuild, engine.Result{StatusCode: 502, Body: []byte("bad gateway")})
	require.JSONEq(t, `"bad gateway"`, string(report.Body))
	require.Nil(t, report.Headers)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "call.get_guild", sanitizeFilename("call.get_guild"))
	require.Equal(t, "bucket-list", sanitizeFilename(" Bucket List "))
	require.Equal(t, "output", sanitizeFilename("..."))
}

func TestResetSummaryBox(t *testing.T) {
	box := resetSummary{Backend: "redis", Matched: 3, DryRun: true}.box()
	require.Contains(t, box, "would delete 3 bucket(s)")

	box = resetSummary{Backend: "libsql", Matched: 3, Deleted: 2}.box()
	require.Contains(t, box, "deleted 2/3 bucket(s)")
	require.True(t, strings.Contains(box, "libsql"))
}

func TestExitCodeFor(t *testing.T) {
	transport := fmt.Errorf("call: %w", &engine.TransportError{Err: errors.New("dial tcp: refused")})
	require.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(transport))

	_, statErr := os.Stat(filepath.Join(t.TempDir(), "missing.json"))
	require.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(statErr))

	require.Equal(t, foundry.ExitFailure, ExitCodeFor(route.ErrUnknownRoute))
}
