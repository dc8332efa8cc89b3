package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSettings = errors.New("invalid settings")

const (
	MaxSearchTopK   = 50
	MaxHistoryTurns = 50
)

type Settings struct {
	ID           int    `json:"-"`
	GeminiAPIKey string `json:"gemini_api_key"`
	SearchTopK   int    `json:"search_top_k"`
	HistoryTurns int    `json:"history_turns"`
}

// Masked returns a copy safe to return to admin clients.
func (s Settings) Masked() Settings {
	s.GeminiAPIKey = MaskKey(s.GeminiAPIKey)
	return s
}

// MaskKey keeps the last four characters of a key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

// Defaults fill settings that were never stored, typically from env config.
type Defaults struct {
	GeminiAPIKey string
	SearchTopK   int
	HistoryTurns int
}

type Service struct {
	repo     Repository
	defaults Defaults
}

func NewService(repo Repository, defaults Defaults) *Service {
	return &Service{repo: repo, defaults: defaults}
}

// Get returns stored settings with unset fields filled from defaults.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := *set
	if out.GeminiAPIKey == "" {
		out.GeminiAPIKey = s.defaults.GeminiAPIKey
	}
	if out.SearchTopK <= 0 {
		out.SearchTopK = s.defaults.SearchTopK
	}
	if out.HistoryTurns <= 0 {
		out.HistoryTurns = s.defaults.HistoryTurns
	}
	return &out, nil
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.SearchTopK < 0 || set.SearchTopK > MaxSearchTopK {
		return fmt.Errorf("%w: search_top_k must be between 1 and %d", ErrInvalidSettings, MaxSearchTopK)
	}
	if set.HistoryTurns < 0 || set.HistoryTurns > MaxHistoryTurns {
		return fmt.Errorf("%w: history_turns must be between 1 and %d", ErrInvalidSettings, MaxHistoryTurns)
	}
	return s.repo.Update(ctx, set)
}
