package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Manifest struct {
	Routes []Route `json:"routes"`
	Count  int     `json:"count"`
}

func NewManifest(routes []Route) Manifest {
	if routes == nil {
		routes = []Route{}
	}
	return Manifest{Routes: routes, Count: len(routes)}
}

// Mount registers a GET handler per URL path. Index routes win over the
// layout module sharing their path; handler may return nil to skip a route.
func Mount(r chi.Router, routes []Route, handler func(Route) http.Handler) int {
	byPath := make(map[string]Route, len(routes))
	var order []string
	for _, route := range routes {
		if route.Layout {
			continue
		}
		prev, ok := byPath[route.Path]
		if !ok {
			order = append(order, route.Path)
			byPath[route.Path] = route
			continue
		}
		if route.Index && !prev.Index {
			byPath[route.Path] = route
		}
	}

	mounted := 0
	for _, p := range order {
		h := handler(byPath[p])
		if h == nil {
			continue
		}
		r.Method(http.MethodGet, p, h)
		mounted++
	}
	return mounted
}
