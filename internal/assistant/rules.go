package assistant

import (
	"context"
	"regexp"
	"strings"
)

// Query is the normalized view of a question the rules match on.
type Query struct {
	Request
	Normalized string
}

func newQuery(req Request) Query {
	return Query{Request: req, Normalized: normalize(req.Question)}
}

func normalize(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.TrimRight(q, "!?. ")
	return strings.Join(strings.Fields(q), " ")
}

// Rule is one (predicate, handler) pair. Rules are evaluated in order and
// the first match answers.
type Rule struct {
	Name   string
	Match  func(q Query) bool
	Handle func(ctx context.Context, q Query) *Answer
}

var greetingPattern = regexp.MustCompile(`^(hi|hello|hey|hiya|howdy|yo|greetings|good (morning|afternoon|evening))( there)?$`)

func isGreeting(q Query) bool {
	return greetingPattern.MatchString(q.Normalized)
}

func isEasterEgg(q Query) bool {
	_, ok := easterEggs[q.Normalized]
	return ok
}

func easterEggRule() Rule {
	return Rule{
		Name:  SourceEasterEgg,
		Match: isEasterEgg,
		Handle: func(_ context.Context, q Query) *Answer {
			return &Answer{Text: easterEggs[q.Normalized], Source: SourceEasterEgg}
		},
	}
}

func greetingRule() Rule {
	return Rule{
		Name:  SourceGreeting,
		Match: isGreeting,
		Handle: func(_ context.Context, q Query) *Answer {
			return &Answer{Text: greeting(q.UserName), Source: SourceGreeting}
		},
	}
}
