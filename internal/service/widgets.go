package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/engine/remote"
	"github.com/joeblew999/quakemap/internal/observability"
	"github.com/joeblew999/quakemap/internal/style"
	"github.com/joeblew999/quakemap/internal/widget"
)

// Session is a mounted widget and the browser engine behind it.
type Session struct {
	ID      string
	Created time.Time
	Widget  *widget.Widget
	Remote  *remote.Engine

	clock      clockwork.Clock
	mu         sync.Mutex
	streaming  bool
	detachedAt time.Time
}

// Attach marks the command stream as connected. Only one stream may read a
// widget's commands at a time.
func (s *Session) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrStreamBusy
	}
	s.streaming = true
	return nil
}

// Detach marks the command stream as gone.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	s.detachedAt = s.clock.Now()
}

// Streaming reports whether a command stream is connected.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// idleSince returns when the session last lost (or never had) a stream.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return time.Time{}, false
	}
	if s.detachedAt.IsZero() {
		return s.Created, true
	}
	return s.detachedAt, true
}

// WidgetOptions configures a WidgetService.
type WidgetOptions struct {
	// Engine holds the camera, style URL and token every widget starts with.
	Engine  engine.Options
	Styles  *StyleService
	IdleTTL time.Duration

	Journal Journal
	Bus     *EventBus
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Clock   clockwork.Clock
}

// WidgetService keeps the mounted widgets.
type WidgetService struct {
	opts WidgetOptions

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewWidgetService creates an empty registry.
func NewWidgetService(opts WidgetOptions) *WidgetService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Minute
	}
	return &WidgetService{opts: opts, sessions: make(map[string]*Session)}
}

// Create mounts a new widget into container. The widget stays Loading until
// the page reports its base style loaded.
func (s *WidgetService) Create(container string) (*Session, error) {
	id := uuid.NewString()
	if container == "" {
		container = "map-" + id[:8]
	}
	logger := s.opts.Logger.With("widget", id)

	doc := style.Default(style.DefaultSources())
	if s.opts.Styles != nil {
		doc, _ = s.opts.Styles.Get()
	}

	sess := &Session{ID: id, Created: s.opts.Clock.Now(), clock: s.opts.Clock}
	eopts := s.opts.Engine
	eopts.Container = container

	sess.Widget = widget.New(widget.Options{
		Engine:   eopts,
		Document: doc,
		Logger:   logger,
		OnStateChange: func(from, to widget.State) {
			s.observeTransition(id, from, to)
		},
		OnError: func(err error) {
			s.opts.Metrics.EngineErrors.Inc()
			s.opts.Bus.Publish(Event{Resource: "widgets", Action: "error", ID: id, Detail: err.Error()})
		},
	})

	factory := remote.Factory(logger, func(e *remote.Engine) { sess.Remote = e })
	err := sess.Widget.Mount(func(o engine.Options) (engine.Engine, error) {
		eng, err := factory(o)
		if err != nil {
			return nil, err
		}
		return &journaledEngine{
			Engine:   eng,
			widgetID: id,
			journal:  s.opts.Journal,
			metrics:  s.opts.Metrics,
			bus:      s.opts.Bus,
			logger:   logger,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("mount widget: %w", err)
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.opts.Bus.Publish(Event{Resource: "widgets", Action: "created", ID: id})
	return sess, nil
}

func (s *WidgetService) observeTransition(id string, from, to widget.State) {
	s.opts.Metrics.WidgetTransitions.WithLabelValues(to.String()).Inc()
	switch {
	case to == widget.Loading:
		s.opts.Metrics.WidgetsActive.Inc()
	case to == widget.Destroyed && from != widget.Uninitialized:
		s.opts.Metrics.WidgetsActive.Dec()
	}
	s.opts.Bus.Publish(Event{Resource: "widgets", Action: to.String(), ID: id})
}

// Get returns a session by ID.
func (s *WidgetService) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: widget %s", ErrNotFound, id)
	}
	return sess, nil
}

// List returns all sessions, oldest first.
func (s *WidgetService) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Delete unmounts the widget and forgets it.
func (s *WidgetService) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: widget %s", ErrNotFound, id)
	}

	sess.Widget.Unmount()
	s.opts.Bus.Publish(Event{Resource: "widgets", Action: "deleted", ID: id})
	return nil
}

// Load reports that the page finished loading the base style, with the
// layers it contains.
func (s *WidgetService) Load(id string, base []style.Layer) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.Remote.Load(base)
	return sess.Widget.Err()
}

// Pointer delivers a mousemove or mouseleave event from the page.
func (s *WidgetService) Pointer(id string, ev engine.Event) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	s.opts.Metrics.PointerEvents.WithLabelValues(string(ev.Type)).Inc()
	sess.Remote.Dispatch(ev)
	return nil
}

// Fail delivers an engine error reported by the page.
func (s *WidgetService) Fail(id, msg string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.Remote.Fail(msg)
	return nil
}

// Resize tells the widget its container changed size.
func (s *WidgetService) Resize(id string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.Widget.Resize()
}

// History returns the recorded hover writes for a widget.
func (s *WidgetService) History(ctx context.Context, id string, limit int) ([]db.Entry, error) {
	if s.opts.Journal == nil {
		return nil, ErrJournalUnavailable
	}
	return s.opts.Journal.History(ctx, id, limit)
}

// Sweep deletes widgets that are destroyed or whose page has had no command
// stream for longer than the idle TTL. It returns the deleted IDs.
func (s *WidgetService) Sweep() []string {
	now := s.opts.Clock.Now()
	var stale []string
	for _, sess := range s.List() {
		if sess.Widget.State() == widget.Destroyed {
			stale = append(stale, sess.ID)
			continue
		}
		if since, idle := sess.idleSince(); idle && now.Sub(since) > s.opts.IdleTTL {
			stale = append(stale, sess.ID)
		}
	}
	for _, id := range stale {
		if err := s.Delete(id); err == nil {
			s.opts.Logger.Info("swept idle widget", "widget", id)
		}
	}
	return stale
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *WidgetService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.opts.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// Shutdown unmounts every widget.
func (s *WidgetService) Shutdown() {
	for _, sess := range s.List() {
		_ = s.Delete(sess.ID)
	}
}

// IdleTTL returns the configured idle timeout.
func (s *WidgetService) IdleTTL() time.Duration { return s.opts.IdleTTL }

// Bus returns the event bus, which may be nil.
func (s *WidgetService) Bus() *EventBus { return s.opts.Bus }
