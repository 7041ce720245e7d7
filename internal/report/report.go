// Package report carries events out of lucid's pipeline. The core packages
// never log directly; they are handed a Reporter and describe what
// happened through it.
package report

import (
	"context"
	"log/slog"
	"sync"
)

// Kind classifies an event.
type Kind string

const (
	KindPhase           Kind = "phase"
	KindDiagnostic      Kind = "diagnostic"
	KindUnrepresentable Kind = "unrepresentable"
	KindEntryPoint      Kind = "entry_point"
	KindFile            Kind = "file"
	KindModule          Kind = "module"
	KindWatch           Kind = "watch"
)

// Event is one thing worth reporting.
type Event struct {
	Kind    Kind
	Level   slog.Level
	Message string
	Attrs   []slog.Attr
}

// Reporter receives events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// Slog writes events to a slog.Logger.
type Slog struct {
	logger *slog.Logger
}

// NewSlog returns a Reporter that logs through logger. A nil logger
// reports nothing.
func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger}
}

func (s *Slog) Report(ctx context.Context, ev Event) {
	if s.logger == nil || !s.logger.Enabled(ctx, ev.Level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(ev.Attrs)+1)
	attrs = append(attrs, slog.String("event", string(ev.Kind)))
	attrs = append(attrs, ev.Attrs...)
	s.logger.LogAttrs(ctx, ev.Level, ev.Message, attrs...)
}

type nop struct{}

func (nop) Report(context.Context, Event) {}

// Nop discards every event.
var Nop Reporter = nop{}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// Multi fans events out to several reporters.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

type multi []Reporter

func (m multi) Report(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Report(ctx, ev)
	}
}
