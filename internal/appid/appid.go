// Package appid resolves the guildrest app identity, falling back to the copy
// embedded in the binary when no .fulmen/app.yaml is found.
package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/namelens/guildrest/internal/assets/appidentity"
)

// DefaultEnvPrefix applies when the identity cannot be loaded.
const DefaultEnvPrefix = "GUILDREST_"

func init() {
	// FULMEN_APP_IDENTITY_PATH and explicit paths still take precedence.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the process app identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the identity's env prefix with a trailing underscore.
func EnvPrefix(ctx context.Context) string {
	prefix := DefaultEnvPrefix
	if identity, err := Get(ctx); err == nil && identity != nil && identity.EnvPrefix != "" {
		prefix = identity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}
