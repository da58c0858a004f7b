// Package routing provides a ServeMux wrapper that collapses doubled path
// separators before dispatch, so a client request like "//v1/chat/completions"
// still matches the registered route.
package routing

import (
	"net/http"
	"path"
	"strings"
)

// NormalizedServeMux wraps http.ServeMux, normalizing request paths before
// delegating to it.
type NormalizedServeMux struct {
	*http.ServeMux
}

// New returns an empty NormalizedServeMux.
func New() *NormalizedServeMux {
	return &NormalizedServeMux{http.NewServeMux()}
}

func (nm *NormalizedServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "//") {
		r.URL.Path = path.Clean(r.URL.Path)
	}
	nm.ServeMux.ServeHTTP(w, r)
}
