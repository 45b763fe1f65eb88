package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/linguaplay/pkg/provider/llm"
	"github.com/MrWong99/linguaplay/pkg/provider/stt"
)

// LLM implements [llm.Provider] over a [Group] of LLM backends.
type LLM struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps primary in a breaker. Register fallbacks with [LLM.AddFallback].
func NewLLM(primary llm.Provider, name string, cfg BreakerConfig) *LLM {
	return &LLM{group: NewGroup(primary, name, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *LLM) AddFallback(name string, p llm.Provider) { f.group.Add(name, p) }

// Group exposes the underlying group for inspection.
func (f *LLM) Group() *Group[llm.Provider] { return f.group }

// Complete sends req to the first healthy backend.
func (f *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// STT implements [stt.Provider] over a [Group] of STT backends.
// [stt.ErrEmptyAudio] is treated as bad input: it neither trips a breaker nor
// triggers failover.
type STT struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STT)(nil)

// NewSTT wraps primary in a breaker. Register fallbacks with [STT.AddFallback].
func NewSTT(primary stt.Provider, name string, cfg BreakerConfig) *STT {
	inner := cfg.IsFailure
	cfg.IsFailure = func(err error) bool {
		if errors.Is(err, stt.ErrEmptyAudio) {
			return false
		}
		if inner != nil {
			return inner(err)
		}
		return true
	}
	return &STT{group: NewGroup(primary, name, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *STT) AddFallback(name string, p stt.Provider) { f.group.Add(name, p) }

// Group exposes the underlying group for inspection.
func (f *STT) Group() *Group[stt.Provider] { return f.group }

// Transcribe sends audio to the first healthy backend.
func (f *STT) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	return Do(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, audio)
	})
}
