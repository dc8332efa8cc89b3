package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mercora/backend/internal/conversation"
	"mercora/backend/internal/settings"
)

type CompleterConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int32
}

type DynamicCompleter struct {
	clients *clientCache
	cfg     CompleterConfig
}

func NewDynamicCompleter(svc *settings.Service, cfg CompleterConfig, opts ...option.ClientOption) *DynamicCompleter {
	return &DynamicCompleter{clients: newClientCache(svc, opts), cfg: cfg}
}

// Complete sends turns as a chat whose final turn must come from the user.
func (c *DynamicCompleter) Complete(ctx context.Context, systemPrompt string, turns []conversation.Turn) (string, error) {
	if len(turns) == 0 || turns[len(turns)-1].Role != conversation.RoleUser {
		return "", fmt.Errorf("%w: last turn must be a user turn", ErrCompletionUnavailable)
	}

	client, release, err := c.clients.get(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}
	defer release()

	model := client.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	model.SetTemperature(c.cfg.Temperature)
	if c.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(c.cfg.MaxTokens)
	}

	cs := model.StartChat()
	for _, t := range turns[:len(turns)-1] {
		role := "user"
		if t.Role == conversation.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Text))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrCompletionUnavailable)
	}
	return text, nil
}

func (c *DynamicCompleter) Close() error {
	return c.clients.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}
