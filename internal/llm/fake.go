package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one Generate invocation for assertions.
type Call struct {
	Step   string
	System string
	Prompt string
}

// FakeClient returns deterministic, minimal text per step for offline
// runs and tests. Responses for a step can be overridden, and failures
// injected per step.
type FakeClient struct {
	mu        sync.Mutex
	calls     []Call
	Responses map[string]string
	FailOn    map[string]error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Responses: map[string]string{},
		FailOn:    map[string]error{},
	}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Calls returns a copy of the recorded invocations.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeClient) Generate(ctx context.Context, system, prompt string, maxOutputTokens int) (Result, error) {
	step := StepFrom(ctx)
	f.mu.Lock()
	f.calls = append(f.calls, Call{Step: step, System: system, Prompt: prompt})
	n := len(f.calls)
	fail := f.FailOn[step]
	override, hasOverride := f.Responses[step]
	f.mu.Unlock()

	if fail != nil {
		return Result{}, fail
	}

	var text string
	switch {
	case hasOverride:
		text = override
	case step == "common_themes":
		text = `[{"theme":"fake theme","description":"appears everywhere","sourceCount":2,"importance":0.9}]`
	case step == "unique_insights":
		text = `[{"sourceIndex":0,"insight":"fake insight","significance":"notable"}]`
	default:
		text = fmt.Sprintf("fake %s output %d", step, n)
	}

	return Result{
		Text:         text,
		InputTokens:  countFakeTokens(prompt),
		OutputTokens: countFakeTokens(text),
	}, nil
}

func countFakeTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
