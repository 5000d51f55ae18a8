package api

import (
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var httpMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// documentedRoutes returns "METHOD /path" for every operation in openapi.yaml.
func documentedRoutes(t *testing.T) []string {
	t.Helper()
	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(openapiDoc, &doc))

	var routes []string
	for path, item := range doc.Paths {
		for key := range item {
			if method := strings.ToUpper(key); slices.Contains(httpMethods, method) {
				routes = append(routes, method+" "+path)
			}
		}
	}
	slices.Sort(routes)
	return routes
}

// registeredRoutes walks the router, leaving out the documentation
// endpoints themselves.
func registeredRoutes(t *testing.T) []string {
	t.Helper()
	var routes []string
	err := chi.Walk((&API{}).Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(route, "/")
		if route == "/openapi.yaml" || strings.HasPrefix(route, "/docs") || strings.HasPrefix(route, "/redoc") {
			return nil
		}
		routes = append(routes, method+" "+route)
		return nil
	})
	require.NoError(t, err)
	slices.Sort(routes)
	return slices.Compact(routes)
}

func TestOpenAPIMatchesRouter(t *testing.T) {
	documented := documentedRoutes(t)
	registered := registeredRoutes(t)
	require.NotEmpty(t, registered)

	for _, r := range registered {
		assert.Contains(t, documented, r, "route missing from openapi.yaml")
	}
	for _, r := range documented {
		assert.Contains(t, registered, r, "openapi.yaml documents a route the router does not serve")
	}
}
