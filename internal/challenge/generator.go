package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/pkg/provider/llm"
	"github.com/MrWong99/linguaplay/pkg/scoring"
)

// defaultMaxTokens leaves room for the three JSON fields of a long
// sentence.
const defaultMaxTokens = 120

// promptTemplate is filled with grammar type, language code and tier.
const promptTemplate = `Generate a %s sentence in %s with %s difficulty. Return ONLY valid JSON: {"sentence": "the sentence", "translation": "english translation", "pronunciation": "phonetic guide"}`

// errUnusable marks an LLM reply that parsed but cannot be used.
var errUnusable = errors.New("unusable reply")

// GeneratorOption is a functional option for [NewGenerator].
type GeneratorOption func(*Generator)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) GeneratorOption {
	return func(g *Generator) {
		g.metrics = m
	}
}

// WithProviderName sets the provider label used in metrics and spans.
// Defaults to "llm".
func WithProviderName(name string) GeneratorOption {
	return func(g *Generator) {
		g.providerName = name
	}
}

// WithMaxTokens caps the completion length. Defaults to 120.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// WithRandom replaces the grammar-type picker. intn must return a value in
// [0, n). Tests use it to make the prompt deterministic.
func WithRandom(intn func(n int) int) GeneratorOption {
	return func(g *Generator) {
		g.intn = intn
	}
}

// Generator is an LLM-backed Source. Each call sends a single completion
// request; any failure falls back to the Bank without retrying.
type Generator struct {
	llm          llm.Provider
	fallback     *Bank
	metrics      *observe.Metrics
	providerName string
	maxTokens    int
	intn         func(n int) int
}

var _ Source = (*Generator)(nil)

// NewGenerator returns a Generator asking p for sentences. p may be nil, in
// which case every request is served by fallback. A nil fallback selects
// [NewBank].
func NewGenerator(p llm.Provider, fallback *Bank, opts ...GeneratorOption) *Generator {
	g := &Generator{
		llm:          p,
		fallback:     fallback,
		providerName: "llm",
		maxTokens:    defaultMaxTokens,
		intn:         rand.IntN,
	}
	for _, o := range opts {
		o(g)
	}
	if g.fallback == nil {
		g.fallback = NewBank()
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Next implements Source.
func (g *Generator) Next(ctx context.Context, req Request) (Challenge, error) {
	if g.llm == nil {
		return g.fallback.Next(ctx, req)
	}

	lang := LookupLanguage(req.Language)
	tier := scoring.ParseTier(string(req.Tier))
	grammarType := lang.GrammarTypes[g.intn(len(lang.GrammarTypes))]

	c, err := g.generate(ctx, lang, tier, grammarType)
	if err == nil {
		if _, used := excludeSet(req.Exclude)[scoring.Normalize(c.Sentence)]; used {
			err = fmt.Errorf("%w: sentence already used", errUnusable)
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Challenge{}, fmt.Errorf("challenge: generate: %w", ctxErr)
		}
		observe.Logger(ctx).Warn("challenge generation failed, using fallback",
			slog.String("language", lang.Code),
			slog.String("tier", string(tier)),
			slog.String("grammar_type", grammarType),
			slog.Any("err", err),
		)
		return g.fallback.Next(ctx, req)
	}
	return c, nil
}

func (g *Generator) generate(ctx context.Context, lang Language, tier scoring.Tier, grammarType string) (Challenge, error) {
	var resp *llm.CompletionResponse
	err := observe.TrackProvider(ctx, g.metrics, g.providerName, observe.KindLLM, func(ctx context.Context) error {
		var err error
		resp, err = g.llm.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf(promptTemplate, grammarType, lang.Code, tier),
			}},
			MaxTokens: g.maxTokens,
		})
		return err
	})
	if err != nil {
		return Challenge{}, err
	}
	if resp == nil {
		return Challenge{}, fmt.Errorf("%w: empty response", errUnusable)
	}

	c, err := parseReply(resp.Content)
	if err != nil {
		return Challenge{}, err
	}
	c.GrammarType = grammarType
	return finish(c, lang, tier), nil
}

// parseReply extracts the JSON object from a model reply. Models often wrap
// it in a ```json fence or add a sentence around it, so everything outside
// the outermost braces is ignored.
func parseReply(content string) (Challenge, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return Challenge{}, fmt.Errorf("%w: no JSON object in reply", errUnusable)
	}

	var reply struct {
		Sentence      string `json:"sentence"`
		Translation   string `json:"translation"`
		Pronunciation string `json:"pronunciation"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return Challenge{}, fmt.Errorf("%w: %w", errUnusable, err)
	}
	if strings.TrimSpace(reply.Sentence) == "" || scoring.Normalize(reply.Sentence) == "" {
		return Challenge{}, fmt.Errorf("%w: empty sentence", errUnusable)
	}
	return Challenge{
		Sentence:      reply.Sentence,
		Translation:   strings.TrimSpace(reply.Translation),
		Pronunciation: strings.TrimSpace(reply.Pronunciation),
	}, nil
}
