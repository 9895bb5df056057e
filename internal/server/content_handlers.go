package server

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"skillbase/internal/appctx"
	"skillbase/internal/routes"
)

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, routes.NewManifest(s.Routes))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok", "redis": "ok"}
	code := http.StatusOK
	if _, err := s.DB.Exec(ctx, "SELECT 1"); err != nil {
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// contentHandler serves markdown route modules. Other modules are listed in
// the manifest for the frontend build but have nothing to render here.
func (s *Server) contentHandler(route routes.Route) http.Handler {
	if !route.Markdown() || s.Pages == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Route "+route.Path+" is not served by this server")
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				params[key] = rctx.URLParams.Values[i]
			}
		}

		var buf bytes.Buffer
		err := s.Pages.Render(&buf, route.File, appctx.From(r.Context()).Locale, params)
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("file", route.File).Msg("render page failed")
			writeError(w, http.StatusInternalServerError, "Failed to render page")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	})
}
