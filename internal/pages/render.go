package pages

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"skillbase/internal/config"
)

var ErrNotMarkdown = errors.New("route module is not markdown")

type FrontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Page struct {
	File string
	FrontMatter
	Body template.HTML
}

// Data is what the layout template sees.
type Data struct {
	Page   *Page
	Env    config.PublicEnv
	Locale string
	Params map[string]string
}

const layout = `<!doctype html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{with .Page.Title}}{{.}} | {{end}}{{.Env.AppName}}</title>
{{- with .Page.Description}}
<meta name="description" content="{{.}}">
{{- end}}
<script id="env" type="application/json">{{.Env}}</script>
</head>
<body>
<main>
{{.Page.Body}}
</main>
</body>
</html>
`

type cached struct {
	sum  [sha256.Size]byte
	page *Page
}

// Renderer turns markdown route modules into HTML pages. Parsed pages are
// kept until the file content changes.
type Renderer struct {
	fsys fs.FS
	env  config.PublicEnv
	md   goldmark.Markdown
	tmpl *template.Template

	mu    sync.RWMutex
	cache map[string]cached
}

func NewRenderer(fsys fs.FS, env config.PublicEnv) *Renderer {
	return &Renderer{
		fsys: fsys,
		env:  env,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		tmpl:  template.Must(template.New("page").Parse(layout)),
		cache: make(map[string]cached),
	}
}

// Load reads and converts file, reusing the cached page when the content is
// unchanged.
func (r *Renderer) Load(file string) (*Page, error) {
	if !isMarkdown(file) {
		return nil, ErrNotMarkdown
	}
	src, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	sum := sha256.Sum256(src)

	r.mu.RLock()
	hit, ok := r.cache[file]
	r.mu.RUnlock()
	if ok && hit.sum == sum {
		return hit.page, nil
	}

	fm, body, err := splitFrontMatter(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("convert %s: %w", file, err)
	}
	page := &Page{File: file, FrontMatter: fm, Body: template.HTML(buf.String())}

	r.mu.Lock()
	r.cache[file] = cached{sum: sum, page: page}
	r.mu.Unlock()
	return page, nil
}

// Render writes the full HTML document for file.
func (r *Renderer) Render(w io.Writer, file, locale string, params map[string]string) error {
	page, err := r.Load(file)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, Data{Page: page, Env: r.env, Locale: locale, Params: params}); err != nil {
		return fmt.Errorf("execute layout: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

func splitFrontMatter(src []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(src, []byte("---\n")) {
		return fm, src, nil
	}
	rest := src[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm, src, nil
	}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return fm, nil, fmt.Errorf("parse front matter: %w", err)
	}
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return fm, body, nil
}

func isMarkdown(file string) bool {
	ext := path.Ext(file)
	return ext == ".md" || ext == ".mdx"
}
