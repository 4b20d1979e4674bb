package generation

import (
	"context"
	"testing"

	"gemdesign-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratorMissingCredential(t *testing.T) {
	cfg := &config.Config{Model: config.ModelConfig{Provider: "gemini"}}

	gen, err := NewGenerator(context.Background(), cfg)
	assert.Nil(t, gen)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
}

func TestNewGeneratorUnsupportedProvider(t *testing.T) {
	cfg := &config.Config{Model: config.ModelConfig{Provider: "llama"}}

	_, err := NewGenerator(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported model provider")
}

func TestNewGeneratorOpenAI(t *testing.T) {
	cfg := &config.Config{
		Model:  config.ModelConfig{Provider: "openai"},
		OpenAI: config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-test"},
		Conversation: config.ConversationConfig{
			MaxAttachmentBytes: 1 << 20,
			AllowedMimeTypes:   []string{"text/plain"},
		},
	}

	gen, err := NewGenerator(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, gen)
}
