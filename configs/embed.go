// Package configs embeds the configuration template written by
// `shardsearch config init`.
package configs

import _ "embed"

// Template is a commented shardsearch.yaml covering every role.
//
//go:embed shardsearch.example.yaml
var Template string
