// Package appidentityassets embeds the app identity so a copied binary still
// knows its name, env prefix and config paths.
package appidentityassets

import _ "embed"

// YAML mirrors .fulmen/app.yaml; the two must be edited together.
//
//go:embed app.yaml
var YAML []byte
