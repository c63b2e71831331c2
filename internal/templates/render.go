// Package templates handles HTML fragment rendering for Datastar SSE responses.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/plat-landmatrix/internal/legend"
)

//go:embed fragments/*.html
var defaultFragments embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"hectares": legend.Hectares,
	"double":   func(v float64) float64 { return 2 * v },
	// percent is v as a share of max, 0 when max is not positive.
	"percent": func(v, max float64) float64 {
		if max <= 0 {
			return 0
		}
		return 100 * v / max
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New creates a renderer from the embedded fragments, overridden by any
// *.html files in fragmentsDir. An empty or missing fragmentsDir uses the
// embedded set only.
func New(fragmentsDir string) (*Renderer, error) {
	tmpl, err := parse(fragmentsDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Default returns a renderer over the embedded fragments. It panics if they
// fail to parse.
func Default() *Renderer {
	r, err := New("")
	if err != nil {
		panic(err)
	}
	return r
}

func parse(fragmentsDir string) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(defaultFragments, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	if fragmentsDir == "" {
		return tmpl, nil
	}
	if _, err := os.Stat(fragmentsDir); err != nil {
		return tmpl, nil
	}
	matches, err := fs.Glob(os.DirFS(fragmentsDir), "*.html")
	if err != nil || len(matches) == 0 {
		return tmpl, err
	}
	return tmpl.ParseGlob(filepath.Join(fragmentsDir, "*.html"))
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload re-parses the fragments (useful for dev hot-reload).
func (r *Renderer) Reload(fragmentsDir string) error {
	tmpl, err := parse(fragmentsDir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
