package generation

import (
	"context"
	"fmt"

	"gemdesign-backend/internal/config"
)

// NewGenerator 按配置的提供方创建生成客户端，进程内只构造一次并注入到各会话
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prompts := NewPrompts(cfg.Prompt)

	switch cfg.Model.Provider {
	case "gemini":
		gen, err := NewGeminiGenerator(ctx, cfg.Gemini, prompts)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "openai":
		return NewOpenAIGenerator(cfg.OpenAI, prompts), nil
	case "doubao":
		chatModel, err := createDoubaoModel(ctx, cfg.Doubao)
		if err != nil {
			return nil, err
		}
		gen, err := NewEinoGenerator(ctx, "doubao", chatModel, prompts)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "qwen":
		chatModel, err := createQwenModel(ctx, cfg.Qwen)
		if err != nil {
			return nil, err
		}
		gen, err := NewEinoGenerator(ctx, "qwen", chatModel, prompts)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Model.Provider)
	}
}
