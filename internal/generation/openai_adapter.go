package generation

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/internal/utils"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator 兼容 OpenAI chat completions 协议的服务
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	prompts Prompts
}

func NewOpenAIGenerator(cfg config.OpenAIConfig, prompts Prompts) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = utils.NewHTTPClient(cfg.Timeout,
		NewDebugTransport("openai", utils.NewTransport(), cfg.DebugRequest))

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		prompts: prompts,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, files []model.FileData) (*Stream, error) {
	parts, err := BuildRequest(prompt, files, g.prompts.Fallback)
	if err != nil {
		return nil, unavailable(err)
	}
	userParts, err := openaiParts(parts)
	if err != nil {
		return nil, unavailable(err)
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.prompts.SystemInstruction},
			{Role: openai.ChatMessageRoleUser, MultiContent: userParts},
		},
		Stream: true,
	})
	if err != nil {
		return nil, unavailable(fmt.Errorf("openai stream: %w", err))
	}

	reader, writer := schema.Pipe[*schema.Message](16)

	// 在goroutine中处理OpenAI stream并写入writer
	go func() {
		defer writer.Close()
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				writer.Send(nil, fmt.Errorf("openai stream: %w", err))
				return
			}

			if len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
				msg := &schema.Message{
					Role:    schema.Assistant,
					Content: response.Choices[0].Delta.Content,
				}
				if closed := writer.Send(msg, nil); closed {
					return
				}
			}
		}
	}()

	return reader, nil
}

// 纯文本文件直接展开为文本片段，其他类型该协议无法承载
func openaiParts(parts []Part) ([]openai.ChatMessagePart, error) {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if !p.IsFile() {
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			continue
		}
		if p.MimeType != "text/plain" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAttachment, p.MimeType)
		}
		out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: string(p.Data)})
	}
	return out, nil
}
