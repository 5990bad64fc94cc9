package llm

import "context"

// Hook observes generation calls. Before/After run synchronously on the
// calling goroutine; implementations must be fast and must not fail.
type Hook interface {
	Before(ctx context.Context, step, system, prompt string)
	After(ctx context.Context, step string, res Result, err error)
}

type ctxKey int

const (
	stepKey ctxKey = iota
	hookKey
)

// WithStep labels ctx with the pipeline step that owns the next call,
// e.g. "segment_summary" or "executive". Used for logging and for the
// fake client's canned outputs.
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepKey, step)
}

func StepFrom(ctx context.Context) string {
	if v, ok := ctx.Value(stepKey).(string); ok {
		return v
	}
	return ""
}

func WithHook(ctx context.Context, h Hook) context.Context {
	return context.WithValue(ctx, hookKey, h)
}

func HookFrom(ctx context.Context) Hook {
	if v, ok := ctx.Value(hookKey).(Hook); ok {
		return v
	}
	return nil
}
