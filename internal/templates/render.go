// Package templates renders the viewer page and the HTML fragments patched
// into it over Datastar SSE.
package templates

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"path/filepath"
	"sync"
)

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
	// json embeds a value as a JavaScript literal
	"json": func(v any) (template.JS, error) {
		b, err := json.Marshal(v)
		return template.JS(b), err
	},
}

// Renderer manages page and fragment templates.
type Renderer struct {
	dir       string
	templates *template.Template
	mu        sync.RWMutex
}

// New parses templatesDir/*.html and templatesDir/fragments/*.html.
func New(templatesDir string) (*Renderer, error) {
	tmpl, err := parse(templatesDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{dir: templatesDir, templates: tmpl}, nil
}

func parse(dir string) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, err
	}
	fragments, _ := filepath.Glob(filepath.Join(dir, "fragments", "*.html"))
	if len(fragments) > 0 {
		if tmpl, err = tmpl.ParseFiles(fragments...); err != nil {
			return nil, err
		}
	}
	return tmpl, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.Execute(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Execute renders a named template to w.
func (r *Renderer) Execute(w io.Writer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates.ExecuteTemplate(w, name, data)
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Reload reloads templates from disk (useful for dev hot-reload).
func (r *Renderer) Reload() error {
	tmpl, err := parse(r.dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
