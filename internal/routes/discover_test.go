package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func paths(routes []Route) map[string]string {
	out := make(map[string]string, len(routes))
	for _, r := range routes {
		out[r.File] = r.Path
	}
	return out
}

func TestDiscover_IgnoresServerModules(t *testing.T) {
	fsys := fstest.MapFS{
		"foo.server.ts": file("export const loader = () => null"),
		"foo.tsx":       file("export default function Foo() {}"),
	}

	routes, err := Discover(fsys, Options{})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "foo.tsx", routes[0].File)
	assert.Equal(t, "/foo", routes[0].Path)
}

func TestDiscover_DefaultIgnores(t *testing.T) {
	fsys := fstest.MapFS{
		".DS_Store":           file(""),
		".hidden/route.tsx":   file(""),
		"widget.client.ts":    file(""),
		"notes.txt":           file(""),
		"blog/route.tsx":      file(""),
		"blog/helper.tsx":     file(""),
		"blog/data.server.ts": file(""),
		"about.md":            file("# About"),
	}

	routes, err := Discover(fsys, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"about.md":       "/about",
		"blog/route.tsx": "/blog",
	}, paths(routes))
}

func TestDiscover_CustomIgnore(t *testing.T) {
	fsys := fstest.MapFS{
		"draft.md": file(""),
		"post.md":  file(""),
	}

	routes, err := Discover(fsys, Options{Ignore: append(DefaultIgnore, "draft.*")})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"post.md": "/post"}, paths(routes))
}

func TestDiscover_Naming(t *testing.T) {
	fsys := fstest.MapFS{
		"_index.tsx":             file(""),
		"skills._index.tsx":      file(""),
		"skills.tsx":             file(""),
		"skills.$slug.tsx":       file(""),
		"skills_.$slug.edit.tsx": file(""),
		"files.$.tsx":            file(""),
		"_auth.tsx":              file(""),
		"_auth.sign-in.tsx":      file(""),
		"sitemap[.]xml.ts":       file(""),
	}

	routes, err := Discover(fsys, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"_index.tsx":             "/",
		"skills._index.tsx":      "/skills",
		"skills.tsx":             "/skills",
		"skills.$slug.tsx":       "/skills/{slug}",
		"skills_.$slug.edit.tsx": "/skills/{slug}/edit",
		"files.$.tsx":            "/files/*",
		"_auth.tsx":              "/",
		"_auth.sign-in.tsx":      "/sign-in",
		"sitemap[.]xml.ts":       "/sitemap.xml",
	}, paths(routes))

	byFile := make(map[string]Route)
	for _, r := range routes {
		byFile[r.File] = r
	}
	assert.True(t, byFile["_index.tsx"].Index)
	assert.True(t, byFile["_auth.tsx"].Layout)
	assert.Equal(t, "_auth", byFile["_auth.sign-in.tsx"].Parent)
	assert.Equal(t, "skills", byFile["skills.$slug.tsx"].Parent)
	assert.Equal(t, "skills", byFile["skills._index.tsx"].Parent)
	assert.Empty(t, byFile["skills_.$slug.edit.tsx"].Parent)
	assert.Equal(t, []string{"slug"}, byFile["skills.$slug.tsx"].Params)
	assert.Equal(t, []string{"*"}, byFile["files.$.tsx"].Params)
}

func TestDiscover_SortedByPath(t *testing.T) {
	fsys := fstest.MapFS{
		"zeta.md":   file(""),
		"alpha.md":  file(""),
		"_index.md": file(""),
	}

	routes, err := Discover(fsys, Options{})
	require.NoError(t, err)
	require.Len(t, routes, 3)
	assert.Equal(t, "/", routes[0].Path)
	assert.Equal(t, "/alpha", routes[1].Path)
	assert.Equal(t, "/zeta", routes[2].Path)
}

func TestDiscover_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "duplicate path",
			fsys: fstest.MapFS{"about.md": file(""), "about.tsx": file("")},
			want: ErrDuplicateRoute,
		},
		{
			name: "folder and flat file",
			fsys: fstest.MapFS{"about/route.tsx": file(""), "about.tsx": file("")},
			want: ErrDuplicateRoute,
		},
		{
			name: "splat not last",
			fsys: fstest.MapFS{"files.$.edit.tsx": file("")},
			want: ErrInvalidName,
		},
		{
			name: "index not last",
			fsys: fstest.MapFS{"_index.foo.tsx": file("")},
			want: ErrInvalidName,
		},
		{
			name: "repeated param",
			fsys: fstest.MapFS{"users.$id.posts.$id.tsx": file("")},
			want: ErrInvalidName,
		},
		{
			name: "unclosed escape",
			fsys: fstest.MapFS{"robots[.txt.ts": file("")},
			want: ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discover(tt.fsys, Options{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDiscover_BadPattern(t *testing.T) {
	_, err := Discover(fstest.MapFS{}, Options{Ignore: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestMount_PrefersIndexAndSkipsLayouts(t *testing.T) {
	routes := []Route{
		{ID: "_auth", File: "_auth.tsx", Path: "/", Layout: true},
		{ID: "skills", File: "skills.tsx", Path: "/skills"},
		{ID: "skills._index", File: "skills._index.md", Path: "/skills", Index: true},
		{ID: "skills.$slug", File: "skills.$slug.md", Path: "/skills/{slug}", Params: []string{"slug"}},
	}

	r := chi.NewRouter()
	n := Mount(r, routes, func(route Route) http.Handler {
		if !route.Markdown() {
			return nil
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			_, _ = w.Write([]byte(route.File + " " + chi.URLParam(req, "slug")))
		})
	})
	assert.Equal(t, 2, n)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/skills", nil))
	assert.Equal(t, "skills._index.md ", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/skills/go", nil))
	assert.Equal(t, "skills.$slug.md go", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewManifest(t *testing.T) {
	m := NewManifest(nil)
	assert.NotNil(t, m.Routes)
	assert.Zero(t, m.Count)
}
