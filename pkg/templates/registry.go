// Package templates holds the named, parameterised statements the gateway
// can run. A Registry is built once from one or more file layers and never
// changes afterwards; later layers shadow earlier ones by name.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/retailsql/pkg/bind"
	"github.com/leapstack-labs/retailsql/pkg/core"
)

//go:embed sql/*.sql
var embedded embed.FS

// OriginEmbedded marks templates shipped inside the binary.
const OriginEmbedded = "embedded"

// Template is a parsed template file.
type Template struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Dialects    []string `json:"dialects,omitempty"`
	Params      []Param  `json:"params"`
	Tags        []string `json:"tags,omitempty"`
	SQL         string   `json:"sql"`
	Origin      string   `json:"origin"`
}

// Required returns the placeholder names in order of first appearance.
func (t *Template) Required() []string {
	names := make([]string, len(t.Params))
	for i, p := range t.Params {
		names[i] = p.Name
	}
	return names
}

// Supports reports whether the template may run against dialect. A template
// that lists no dialects runs everywhere.
func (t *Template) Supports(dialect string) bool {
	if len(t.Dialects) == 0 {
		return true
	}
	return slices.Contains(t.Dialects, strings.ToLower(dialect))
}

// Layer is one source of template files. Only *.sql files at the root of FS
// are considered.
type Layer struct {
	Origin string
	FS     fs.FS
}

// Embedded returns the layer of templates compiled into the binary.
func Embedded() Layer {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return Layer{Origin: OriginEmbedded, FS: sub}
}

// Dir returns a layer reading templates from a directory on disk.
func Dir(dir string) Layer {
	return Layer{Origin: dir, FS: os.DirFS(dir)}
}

type entry struct {
	name   string
	file   string
	origin string
	fsys   fs.FS

	once sync.Once
	tmpl *Template
	err  error
}

func (e *entry) load() (*Template, error) {
	e.once.Do(func() {
		e.tmpl, e.err = parse(e.fsys, e.file, e.name, e.origin)
	})
	return e.tmpl, e.err
}

// Registry resolves template names. It is safe for concurrent use.
type Registry struct {
	entries map[string]*entry
	names   []string
}

// New builds a registry from layers in order. Each file is parsed on first
// use; a file that fails to parse only fails its own lookups.
func New(layers ...Layer) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry)}
	for _, layer := range layers {
		if layer.FS == nil {
			continue
		}
		files, err := fs.Glob(layer.FS, "*.sql")
		if err != nil {
			return nil, fmt.Errorf("listing templates in %s: %w", layer.Origin, err)
		}
		for _, file := range files {
			name := strings.TrimSuffix(path.Base(file), ".sql")
			r.entries[name] = &entry{name: name, file: file, origin: layer.Origin, fsys: layer.FS}
		}
	}
	for name := range r.entries {
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)
	return r, nil
}

// Default builds the embedded layer plus an optional override directory.
// A missing override directory is an error; an empty string skips it.
func Default(overrideDir string) (*Registry, error) {
	layers := []Layer{Embedded()}
	if overrideDir != "" {
		info, err := os.Stat(overrideDir)
		if err != nil {
			return nil, fmt.Errorf("template directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("template directory %s is not a directory", overrideDir)
		}
		layers = append(layers, Dir(overrideDir))
	}
	return New(layers...)
}

// Names returns every template name, sorted.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Resolve returns the named template or a *core.NotFoundError.
func (r *Registry) Resolve(name string) (*Template, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, &core.NotFoundError{Name: name, Available: r.Names()}
	}
	return e.load()
}

// Required returns the placeholder names of a template.
func (r *Registry) Required(name string) ([]string, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return t.Required(), nil
}

// Warm parses every template and returns all parse failures joined.
func (r *Registry) Warm() error {
	var errs []error
	for _, name := range r.names {
		if _, err := r.entries[name].load(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parse(fsys fs.FS, file, name, origin string) (*Template, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", file, err)
	}

	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		var fe *FrontmatterError
		var ue *UnknownFieldError
		switch {
		case errors.As(err, &fe):
			fe.File = file
		case errors.As(err, &ue):
			ue.File = file
		}
		return nil, err
	}
	if body == "" {
		return nil, &FrontmatterError{File: file, Message: "template has no statement"}
	}
	if fm == nil {
		fm = &Frontmatter{}
	}
	if fm.Name != "" && fm.Name != name {
		return nil, &FrontmatterError{File: file, Message: fmt.Sprintf("name %q does not match file name %q", fm.Name, name)}
	}

	placeholders := bind.Placeholders(body)
	params, err := reconcileParams(fm.Params, placeholders)
	if err != nil {
		return nil, &FrontmatterError{File: file, Message: err.Error()}
	}

	return &Template{
		Name:        name,
		Description: fm.Description,
		Dialects:    fm.Dialects,
		Params:      params,
		Tags:        fm.Tags,
		SQL:         body,
		Origin:      origin,
	}, nil
}

// reconcileParams orders documented params by placeholder appearance. When
// params are documented they must name exactly the placeholders used.
func reconcileParams(documented []Param, placeholders []string) ([]Param, error) {
	byName := make(map[string]Param, len(documented))
	for _, p := range documented {
		byName[p.Name] = p
	}

	params := make([]Param, 0, len(placeholders))
	for _, name := range placeholders {
		p, ok := byName[name]
		if !ok {
			if len(documented) > 0 {
				return nil, fmt.Errorf("placeholder :%s is not documented in params", name)
			}
			p = Param{Name: name, Type: TypeAny}
		}
		delete(byName, name)
		params = append(params, p)
	}
	if len(byName) > 0 {
		extra := make([]string, 0, len(byName))
		for name := range byName {
			extra = append(extra, name)
		}
		slices.Sort(extra)
		return nil, fmt.Errorf("documented params not used by the statement: %s", strings.Join(extra, ", "))
	}
	return params, nil
}
