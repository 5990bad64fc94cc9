package llm

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
	rl    *paceLimiter
}

// NewGeminiClient builds a client for model. The API key is read by the
// genai SDK from the environment. Optional throttling via LLM_RPS /
// GEMINI_RPS and LLM_BURST / GEMINI_BURST.
func NewGeminiClient(ctx context.Context, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	rps := envFloat("LLM_RPS")
	if rps == 0 {
		rps = envFloat("GEMINI_RPS")
	}
	burst := envInt("LLM_BURST")
	if burst == 0 {
		burst = envInt("GEMINI_BURST")
	}
	return &GeminiClient{cli: cli, model: model, rl: newPaceLimiter(rps, burst)}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// Generate sends one prompt with a system instruction and an output
// token cap. Transient failures are retried with backoff; safety-blocked
// responses are surfaced as permanent errors.
func (g *GeminiClient) Generate(ctx context.Context, system, prompt string, maxOutputTokens int) (Result, error) {
	step := StepFrom(ctx)
	if hook := HookFrom(ctx); hook != nil {
		hook.Before(ctx, step, system, prompt)
	}
	log.Printf("llm request (%s): %d prompt bytes", step, len(prompt))

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if maxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(maxOutputTokens)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := g.rl.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			cfg,
		)
		switch {
		case err != nil:
			lastErr = err
		case len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0:
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
				lastErr = NewPermanentError(fmt.Errorf("content filtered by provider"))
			} else {
				lastErr = ErrEmptyCompletion
			}
		default:
			res := Result{Text: resp.Candidates[0].Content.Parts[0].Text}
			if um := resp.UsageMetadata; um != nil {
				res.InputTokens = int(um.PromptTokenCount)
				res.OutputTokens = int(um.CandidatesTokenCount)
			}
			if hook := HookFrom(ctx); hook != nil {
				hook.After(ctx, step, res, nil)
			}
			return res, nil
		}
		if IsPermanent(lastErr) {
			break
		}
		time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
	}
	if hook := HookFrom(ctx); hook != nil {
		hook.After(ctx, step, Result{}, lastErr)
	}
	return Result{}, lastErr
}

func envFloat(key string) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func envInt(key string) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
