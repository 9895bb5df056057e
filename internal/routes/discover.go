package routes

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrDuplicateRoute = errors.New("duplicate route path")
	ErrInvalidName    = errors.New("invalid route file name")
)

// DefaultIgnore keeps dotfiles and server/client-only modules out of the
// route table.
var DefaultIgnore = []string{"**/.*", "**/*.server.ts", "**/*.client.ts"}

var DefaultExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".md", ".mdx"}

// Options controls Discover. Nil fields fall back to the defaults.
type Options struct {
	Ignore     []string
	Extensions []string
}

type Route struct {
	ID     string   `json:"id"`
	Parent string   `json:"parentId,omitempty"`
	File   string   `json:"file"`
	Path   string   `json:"path"`
	Params []string `json:"params,omitempty"`
	Index  bool     `json:"index,omitempty"`
	Layout bool     `json:"layout,omitempty"`
}

// Markdown reports whether the route module is a markdown document.
func (r Route) Markdown() bool {
	ext := path.Ext(r.File)
	return ext == ".md" || ext == ".mdx"
}

// Discover scans the top level of fsys for route modules. Files name flat
// routes; a directory names a folder route when it holds route.<ext>.
func Discover(fsys fs.FS, opts Options) ([]Route, error) {
	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}
	for _, p := range ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	exts := opts.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read routes dir: %w", err)
	}

	var out []Route
	for _, entry := range entries {
		name := entry.Name()
		if ignored(name, ignore) {
			continue
		}

		var file, id string
		if entry.IsDir() {
			file, err = folderModule(fsys, name, ignore, exts)
			if err != nil {
				return nil, err
			}
			if file == "" {
				continue
			}
			id = name
		} else {
			ext := matchExt(name, exts)
			if ext == "" {
				continue
			}
			file = name
			id = strings.TrimSuffix(name, ext)
		}

		route, err := parseRoute(id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		route.File = file
		out = append(out, route)
	}

	assignParents(out)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].File < out[j].File
	})

	if err := checkDuplicates(out); err != nil {
		return nil, err
	}
	return out, nil
}

func folderModule(fsys fs.FS, dir string, ignore, exts []string) (string, error) {
	for _, ext := range exts {
		file := dir + "/route" + ext
		if ignored(file, ignore) {
			continue
		}
		info, err := fs.Stat(fsys, file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", file, err)
		}
		if !info.IsDir() {
			return file, nil
		}
	}
	return "", nil
}

func ignored(rel string, patterns []string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func matchExt(name string, exts []string) string {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return ext
		}
	}
	return ""
}

// parseRoute turns a flat route id such as "blog.$slug" into a route.
func parseRoute(id string) (Route, error) {
	raw, err := splitSegments(id)
	if err != nil {
		return Route{}, err
	}

	route := Route{ID: id}
	var segments []string
	for i, seg := range raw {
		last := i == len(raw)-1
		switch {
		case seg == "_index":
			if !last {
				return Route{}, fmt.Errorf("%w: _index must be the last segment", ErrInvalidName)
			}
			route.Index = true
			continue
		case strings.HasPrefix(seg, "_"):
			if last {
				route.Layout = true
			}
			continue
		}

		if len(seg) > 1 && strings.HasSuffix(seg, "_") {
			seg = strings.TrimSuffix(seg, "_")
		}

		switch {
		case seg == "$":
			if !last {
				return Route{}, fmt.Errorf("%w: splat must be the last segment", ErrInvalidName)
			}
			route.Params = append(route.Params, "*")
			segments = append(segments, "*")
		case strings.HasPrefix(seg, "$"):
			param := seg[1:]
			if strings.ContainsAny(param, "[]{}/") {
				return Route{}, fmt.Errorf("%w: bad parameter %q", ErrInvalidName, seg)
			}
			if slices.Contains(route.Params, param) {
				return Route{}, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidName, param)
			}
			route.Params = append(route.Params, param)
			segments = append(segments, "{"+param+"}")
		default:
			segments = append(segments, unescape(seg))
		}
	}

	route.Path = "/" + strings.Join(segments, "/")
	return route, nil
}

// splitSegments splits on dots outside [] escapes.
func splitSegments(id string) ([]string, error) {
	var (
		out    []string
		cur    strings.Builder
		escape bool
	)
	for _, r := range id {
		switch {
		case r == '[' && !escape:
			escape = true
			cur.WriteRune(r)
		case r == ']' && escape:
			escape = false
			cur.WriteRune(r)
		case r == '.' && !escape:
			if cur.Len() == 0 {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidName, id)
			}
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escape {
		return nil, fmt.Errorf("%w: unclosed [ in %q", ErrInvalidName, id)
	}
	if cur.Len() == 0 {
		return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidName, id)
	}
	return append(out, cur.String()), nil
}

func unescape(seg string) string {
	return strings.NewReplacer("[", "", "]", "").Replace(seg)
}

// assignParents links each route to the longest other route id that prefixes
// it, which is how nested layouts are expressed in flat routes.
func assignParents(routes []Route) {
	for i := range routes {
		best := ""
		for j := range routes {
			if i == j || routes[j].Index {
				continue
			}
			candidate := routes[j].ID
			if strings.HasPrefix(routes[i].ID, candidate+".") && len(candidate) > len(best) {
				best = candidate
			}
		}
		routes[i].Parent = best
	}
}

func checkDuplicates(routes []Route) error {
	seen := make(map[string]string, len(routes))
	for _, r := range routes {
		if r.Layout {
			continue
		}
		key := r.Path
		if r.Index {
			key += "#index"
		}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateRoute, r.Path, prev, r.File)
		}
		seen[key] = r.File
	}
	return nil
}
