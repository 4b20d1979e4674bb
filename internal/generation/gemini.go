package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/pkg/logger"

	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	prompts Prompts
}

func NewGeminiGenerator(ctx context.Context, cfg config.GeminiConfig, prompts Prompts) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiGenerator{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		prompts: prompts,
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, files []model.FileData) (*Stream, error) {
	parts, err := BuildRequest(prompt, files, g.prompts.Fallback)
	if err != nil {
		return nil, unavailable(err)
	}

	gm := g.client.GenerativeModel(g.model)
	gm.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(g.prompts.SystemInstruction)},
	}

	cancel := context.CancelFunc(func() {})
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	}

	logger.Debugf("gemini: streaming %s with %d file part(s)", g.model, len(files))
	it := gm.GenerateContentStream(ctx, geminiParts(parts)...)
	return pumpGemini(it, cancel)
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func geminiParts(parts []Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsFile() {
			out = append(out, genai.Blob{MIMEType: p.MimeType, Data: p.Data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

type contentIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// pumpGemini 先取第一个响应，连接或鉴权失败在返回流之前就暴露给调用方
func pumpGemini(it contentIterator, cancel context.CancelFunc) (*Stream, error) {
	first, err := it.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		cancel()
		return nil, unavailable(fmt.Errorf("gemini generate: %w", err))
	}

	reader, writer := schema.Pipe[*schema.Message](16)
	go func() {
		defer cancel()
		defer writer.Close()

		if errors.Is(err, iterator.Done) {
			return
		}
		resp := first
		for {
			if text := responseText(resp); text != "" {
				if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: text}, nil); closed {
					return
				}
			}
			resp, err = it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				writer.Send(nil, fmt.Errorf("gemini stream: %w", err))
				return
			}
		}
	}()

	return reader, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
