// Package spec embeds the OpenAPI description of the HTTP API.
package spec

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var openapi []byte

// OpenAPIHandler serves the embedded OpenAPI specification. The /docs UI
// loads it from /openapi.yaml.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openapi)
	}
}
