package server

import (
	"log/slog"
	"sync/atomic"

	"github.com/leapstack-labs/retailsql/internal/server/notifier"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// Source is a template source whose registry can be swapped while requests
// are in flight. Each registry stays immutable; a reload builds a new one.
type Source struct {
	dir        string
	current    atomic.Pointer[templates.Registry]
	generation atomic.Uint64
	notify     *notifier.Notifier
	logger     *slog.Logger
}

var _ gateway.TemplateSource = (*Source)(nil)

// NewSource loads the embedded templates overlaid with dir.
func NewSource(dir string, notify *notifier.Notifier, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if notify == nil {
		notify = notifier.New()
	}
	reg, err := templates.Default(dir)
	if err != nil {
		return nil, err
	}
	s := &Source{dir: dir, notify: notify, logger: logger}
	s.current.Store(reg)
	s.generation.Store(1)
	return s, nil
}

// Resolve implements gateway.TemplateSource.
func (s *Source) Resolve(name string) (*templates.Template, error) {
	return s.current.Load().Resolve(name)
}

// Registry returns the registry currently in use.
func (s *Source) Registry() *templates.Registry { return s.current.Load() }

// Generation counts successful loads, starting at 1.
func (s *Source) Generation() uint64 { return s.generation.Load() }

// Reload rebuilds the registry from disk. A registry with any template that
// fails to parse is rejected and the previous one stays active.
func (s *Source) Reload() error {
	reg, err := templates.Default(s.dir)
	if err == nil {
		err = reg.Warm()
	}
	if err != nil {
		s.logger.Warn("template reload rejected", slog.String("dir", s.dir), slog.String("error", err.Error()))
		s.notify.Broadcast(notifier.Event{Generation: s.Generation(), Templates: len(s.Registry().Names()), Error: err.Error()})
		return err
	}

	s.current.Store(reg)
	gen := s.generation.Add(1)
	s.logger.Info("templates reloaded", slog.Uint64("generation", gen), slog.Int("templates", len(reg.Names())))
	s.notify.Broadcast(notifier.Event{Generation: gen, Templates: len(reg.Names())})
	return nil
}
