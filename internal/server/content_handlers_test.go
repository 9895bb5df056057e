package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillbase/internal/pages"
	"skillbase/internal/routes"
)

func contentEnv(t *testing.T) *testEnv {
	t.Helper()
	fsys := fstest.MapFS{
		"_index.tsx":       {Data: []byte("export default function Home() {}")},
		"about.tsx":        {Data: []byte("export default function About() {}")},
		"about.server.ts":  {Data: []byte("export const loader = () => null")},
		"skills.$slug.md":  {Data: []byte("---\ntitle: Skill\n---\n# Skill page\n")},
		".hidden/route.md": {Data: []byte("# secret")},
	}
	found, err := routes.Discover(fsys, routes.Options{})
	require.NoError(t, err)

	cfg := testConfig()
	return newTestEnv(t, cfg, Deps{
		Routes: found,
		Pages:  pages.NewRenderer(fsys, cfg.Public),
	})
}

func TestRoutesManifest(t *testing.T) {
	env := contentEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["count"])
	assert.NotContains(t, rec.Body.String(), "about.server.ts")
	assert.NotContains(t, rec.Body.String(), ".hidden")
}

func TestContentRoute_RendersMarkdown(t *testing.T) {
	env := contentEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/skills/go?lng=de", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `<html lang="de">`)
	assert.Contains(t, rec.Body.String(), "<title>Skill | Skillbase</title>")
	assert.Contains(t, rec.Body.String(), "Skill page</h1>")
}

func TestContentRoute_ScriptModuleNotServed(t *testing.T) {
	env := contentEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route /about is not served by this server", decodeBody(t, rec)["message"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["database"])

	env.mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("connection refused"))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unavailable", body["database"])
	assert.Equal(t, "ok", body["redis"])
}
