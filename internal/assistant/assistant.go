// Package assistant answers storefront questions from retrieved catalog
// context, short-circuiting greetings and a few fixed phrases.
package assistant

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"mercora/backend/internal/conversation"
	"mercora/backend/internal/retrieval"
	"mercora/backend/internal/settings"
)

const (
	SourceEasterEgg = "easter_egg"
	SourceGreeting  = "greeting"
	SourceModel     = "model"
	SourceFallback  = "fallback"

	DefaultFlavorChance = 0.3
)

type Completer interface {
	Complete(ctx context.Context, systemPrompt string, turns []conversation.Turn) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, question string) *retrieval.ContextBlock
}

// Random is satisfied by *rand.Rand from math/rand/v2.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }

type Request struct {
	Question string
	History  []conversation.Turn
	UserName string
}

type Answer struct {
	Text       string                  `json:"text"`
	ProductIDs []string                `json:"productIds"`
	Context    *retrieval.ContextBlock `json:"context,omitempty"`
	Source     string                  `json:"source"`
}

type Config struct {
	HistoryTurns int
	FlavorChance float64
}

type Assistant struct {
	retriever Retriever
	completer Completer
	settings  *settings.Service
	cfg       Config
	rnd       Random
	rules     []Rule
}

type Option func(*Assistant)

// WithRandom replaces the source used for flavor lines.
func WithRandom(r Random) Option {
	return func(a *Assistant) { a.rnd = r }
}

func New(r Retriever, c Completer, set *settings.Service, cfg Config, opts ...Option) *Assistant {
	a := &Assistant{
		retriever: r,
		completer: c,
		settings:  set,
		cfg:       cfg,
		rnd:       globalRandom{},
	}
	for _, o := range opts {
		o(a)
	}
	a.rules = []Rule{
		easterEggRule(),
		greetingRule(),
		{Name: SourceModel, Match: func(Query) bool { return true }, Handle: a.grounded},
	}
	return a
}

// Answer always returns a reply. Failures below it are logged and turned
// into a fallback text.
func (a *Assistant) Answer(ctx context.Context, req Request) *Answer {
	q := newQuery(req)
	for _, r := range a.rules {
		if r.Match(q) {
			ans := r.Handle(ctx, q)
			slog.InfoContext(ctx, "assistant answered", "rule", r.Name, "source", ans.Source, "products", len(ans.ProductIDs))
			return ans
		}
	}
	return &Answer{Text: fallbackAnswer, Source: SourceFallback}
}

func (a *Assistant) grounded(ctx context.Context, q Query) *Answer {
	block := a.retriever.Retrieve(ctx, q.Question)
	ans := &Answer{Context: block, ProductIDs: block.ProductIDs()}

	turns := append([]conversation.Turn{}, conversation.Recent(q.History, a.historyTurns(ctx))...)
	turns = append(turns, conversation.Turn{Role: conversation.RoleUser, Text: q.Question})

	prompt := SystemPrompt(block.Text, q.UserName, retrieval.NoContextSentinel)
	text, err := a.completer.Complete(ctx, prompt, dropLeadingAssistant(turns))
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "error", err)
		ans.Text = fallbackAnswer
		ans.Source = SourceFallback
		return ans
	}

	ans.Text = a.withFlavor(text)
	ans.Source = SourceModel
	return ans
}

func (a *Assistant) historyTurns(ctx context.Context) int {
	n := a.cfg.HistoryTurns
	if a.settings != nil {
		if s, err := a.settings.Get(ctx); err == nil && s.HistoryTurns > 0 {
			n = s.HistoryTurns
		}
	}
	return n
}

func (a *Assistant) withFlavor(text string) string {
	if len(flavorLines) == 0 || a.rnd.Float64() >= a.cfg.FlavorChance {
		return text
	}
	return text + "\n\n" + flavorLines[a.rnd.IntN(len(flavorLines))]
}

// dropLeadingAssistant trims assistant turns at the start of a window; chat
// models expect the conversation to open with the user.
func dropLeadingAssistant(turns []conversation.Turn) []conversation.Turn {
	for len(turns) > 0 && turns[0].Role == conversation.RoleAssistant {
		turns = turns[1:]
	}
	return turns
}
