// Package api carries the HTTP contract served under /api.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
