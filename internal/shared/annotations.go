package shared

import (
	"context"
	"maps"
	"sync"
)

// Annotations collects per-request audit detail written by handlers and read
// by the guard once the handler returns.
type Annotations struct {
	mu      sync.Mutex
	details map[string]any
	err     string
}

type annotationsContextKey struct{}

// ContextWithAnnotations attaches a fresh collector to ctx.
func ContextWithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	a := &Annotations{}
	return context.WithValue(ctx, annotationsContextKey{}, a), a
}

// Annotate records a detail for the request's audit record. It is a no-op
// outside an audited route.
func Annotate(ctx context.Context, key string, value any) {
	a, ok := ctx.Value(annotationsContextKey{}).(*Annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.details == nil {
		a.details = make(map[string]any)
	}
	a.details[key] = value
}

// AnnotateError records the server-side error behind a failed request.
func AnnotateError(ctx context.Context, err error) {
	a, ok := ctx.Value(annotationsContextKey{}).(*Annotations)
	if !ok || err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err.Error()
}

// Snapshot returns a copy of the collected details and error text.
func (a *Annotations) Snapshot() (map[string]any, string) {
	if a == nil {
		return nil, ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.details), a.err
}
