package reporter

import (
	"sync"

	"github.com/swerdloj/jitter/ast"
)

// Option configures a Handler.
type Option func(*Handler)

// WithErrorLimit stops collection after n errors; every report past
// the limit tells its caller to unwind. Zero (the default) collects
// everything and leaves failing to the stage boundaries.
func WithErrorLimit(n int) Option {
	return func(h *Handler) {
		h.limit = n
	}
}

// WithSink observes every diagnostic as it is reported. The sink runs
// under the handler's lock (so it may be called from whichever
// goroutine is compiling a file) and must not call back into the
// handler.
func WithSink(sink func(*Diagnostic)) Option {
	return func(h *Handler) {
		h.sink = sink
	}
}

// Handler accumulates the diagnostics of one compilation across all
// of its stages and files. Methods are safe for concurrent use;
// distinct files lex and parse in parallel against the same handler.
type Handler struct {
	mu sync.Mutex

	limit int
	sink  func(*Diagnostic)

	// Registered file texts, for snippet extraction.
	sources map[string]string

	diags []*Diagnostic
	errs  int

	// The diagnostic that hit the error limit, if any.
	stop *Diagnostic
	// A non-diagnostic failure (I/O and the like); fatal immediately.
	fatal error
}

// NewHandler creates a handler. With no options it collects every
// diagnostic and fails only at stage boundaries.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{sources: make(map[string]string)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterSource records a file's text so that diagnostics against it
// carry their offending source line.
func (h *Handler) RegisterSource(path, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[path] = text
}

// Report records d. A nil result means keep going and collect more; a
// non-nil result means collection is over (the error limit was hit,
// or an earlier failure was fatal) and the stage must unwind with it.
func (h *Handler) Report(d *Diagnostic) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fatal != nil {
		return h.fatal
	}
	if h.stop != nil {
		return h.stop
	}

	if source, ok := h.sources[d.Pos.Filename]; ok && d.Snippet == "" {
		d.Snippet = renderSnippet(source, d.Pos)
	}

	h.diags = append(h.diags, d)
	if h.sink != nil {
		h.sink(d)
	}

	if d.Severity == SeverityError {
		h.errs++
		if h.limit > 0 && h.errs >= h.limit {
			h.stop = d
			return d
		}
	}
	return nil
}

// Errorf reports an error-severity diagnostic. The result follows
// Report's contract: non-nil means unwind.
func (h *Handler) Errorf(pos ast.SourcePos, format string, args ...interface{}) error {
	return h.Report(Errorf(pos, format, args...))
}

// Warningf reports a warning. Warnings never fail a compilation.
func (h *Handler) Warningf(pos ast.SourcePos, format string, args ...interface{}) {
	_ = h.Report(Warningf(pos, format, args...))
}

// ReportError records an arbitrary error. Diagnostics batch like any
// other report; anything else aborts the whole compilation at once.
func (h *Handler) ReportError(err error) error {
	if d, ok := err.(*Diagnostic); ok {
		return h.Report(d)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fatal == nil {
		h.fatal = err
	}
	return h.fatal
}

// Stopped reports whether collection was cut short, either by the
// error limit or by a fatal error. Long-running scans (the lexer's
// character loop) use this to skip the rest of their input.
func (h *Handler) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop != nil || h.fatal != nil
}

// Failed reports whether anything of error severity accumulated.
func (h *Handler) Failed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errs > 0 || h.fatal != nil
}

// Err is the stage-boundary check: nil when no errors accumulated,
// the batched CompileError otherwise.
func (h *Handler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fatal != nil {
		return h.fatal
	}
	if h.errs == 0 {
		return nil
	}
	return &CompileError{Diagnostics: append([]*Diagnostic(nil), h.diags...)}
}

// Diagnostics returns everything reported so far, in report order.
func (h *Handler) Diagnostics() []*Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Diagnostic(nil), h.diags...)
}
