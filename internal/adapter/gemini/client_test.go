package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"mercora/backend/internal/adapter/gemini"
	"mercora/backend/internal/conversation"
	"mercora/backend/internal/settings"
)

// MockSettingsRepo
type MockSettingsRepo struct {
	mock.Mock
}

func (m *MockSettingsRepo) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockSettingsRepo) Update(ctx context.Context, s *settings.Settings) error {
	return m.Called(ctx, s).Error(0)
}

func TestDynamicEmbedder_Embed(t *testing.T) {
	mockRepo := new(MockSettingsRepo)
	settingsSvc := settings.NewService(mockRepo, settings.Defaults{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-embedding-001")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{
				"values": []float32{0.1, 0.2, 0.3},
			},
		})
	}))
	defer ts.Close()

	embedder := gemini.NewDynamicEmbedder(
		settingsSvc,
		gemini.EmbedderConfig{Model: "gemini-embedding-001", RatePerSec: 100, Timeout: 5 * time.Second},
		option.WithEndpoint(ts.URL),
	)
	defer embedder.Close()
	assert.Equal(t, "gemini-embedding-001", embedder.Model())

	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockRepo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: "test-key"}, nil).Once()

		vec, err := embedder.Embed(ctx, "hello world")
		assert.NoError(t, err)
		if assert.Len(t, vec, 3) {
			assert.Equal(t, float32(0.1), vec[0])
		}
		mockRepo.AssertExpectations(t)
	})

	t.Run("Missing API Key", func(t *testing.T) {
		mockRepo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: ""}, nil).Once()

		vec, err := embedder.Embed(ctx, "hello")
		assert.ErrorIs(t, err, gemini.ErrEmbeddingUnavailable)
		assert.Contains(t, err.Error(), "gemini api key not configured")
		assert.Nil(t, vec)
		mockRepo.AssertExpectations(t)
	})
}

func TestDynamicEmbedder_UpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	svc := settings.NewService(settings.NewMemoryRepo(), settings.Defaults{GeminiAPIKey: "env-key"})
	embedder := gemini.NewDynamicEmbedder(svc, gemini.EmbedderConfig{Model: "gemini-embedding-001"}, option.WithEndpoint(ts.URL))
	defer embedder.Close()

	_, err := embedder.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, gemini.ErrEmbeddingUnavailable)
}

func TestDynamicCompleter_Complete(t *testing.T) {
	var captured map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		json.NewDecoder(r.Body).Decode(&captured)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": "We carry insulated gear. "}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer ts.Close()

	svc := settings.NewService(settings.NewMemoryRepo(), settings.Defaults{GeminiAPIKey: "env-key"})
	completer := gemini.NewDynamicCompleter(svc, gemini.CompleterConfig{
		Model:       "gemini-2.0-flash",
		Temperature: 0.2,
		MaxTokens:   256,
	}, option.WithEndpoint(ts.URL))
	defer completer.Close()

	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Text: "hi"},
		{Role: conversation.RoleAssistant, Text: "hello, how can I help?"},
		{Role: conversation.RoleUser, Text: "what keeps me warm?"},
	}

	text, err := completer.Complete(context.Background(), "only use the context", turns)
	require.NoError(t, err)
	assert.Equal(t, "We carry insulated gear.", text)

	contents := captured["contents"].([]interface{})
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].(map[string]interface{})["role"])
	assert.Equal(t, "model", contents[1].(map[string]interface{})["role"])
	assert.Equal(t, "user", contents[2].(map[string]interface{})["role"])

	system := captured["systemInstruction"].(map[string]interface{})
	parts := system["parts"].([]interface{})
	assert.Equal(t, "only use the context", parts[0].(map[string]interface{})["text"])

	genCfg := captured["generationConfig"].(map[string]interface{})
	assert.InDelta(t, 0.2, genCfg["temperature"], 0.0001)
}

func TestDynamicCompleter_RejectsTrailingAssistantTurn(t *testing.T) {
	svc := settings.NewService(settings.NewMemoryRepo(), settings.Defaults{GeminiAPIKey: "env-key"})
	completer := gemini.NewDynamicCompleter(svc, gemini.CompleterConfig{Model: "gemini-2.0-flash"})

	_, err := completer.Complete(context.Background(), "sys", []conversation.Turn{{Role: conversation.RoleAssistant, Text: "x"}})
	assert.ErrorIs(t, err, gemini.ErrCompletionUnavailable)

	_, err = completer.Complete(context.Background(), "sys", nil)
	assert.ErrorIs(t, err, gemini.ErrCompletionUnavailable)
}
