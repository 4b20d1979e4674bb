package generation

import (
	"context"
	"fmt"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/internal/utils"
	"gemdesign-backend/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// EinoGenerator 通过 eino ChatModel 调用豆包、通义等服务。
// 请求在一个编译好的图中执行：BuildMessages -> ChatModel。
type EinoGenerator struct {
	name     string
	prompts  Prompts
	runnable compose.Runnable[[]Part, *schema.Message]
}

func NewEinoGenerator(ctx context.Context, name string, chatModel einoModel.ChatModel, prompts Prompts) (*EinoGenerator, error) {
	g := &EinoGenerator{
		name:    name,
		prompts: prompts,
	}

	graph := compose.NewGraph[[]Part, *schema.Message]()
	if err := graph.AddLambdaNode("BuildMessages", compose.InvokableLambda(g.buildMessages)); err != nil {
		return nil, fmt.Errorf("add BuildMessages node: %w", err)
	}
	if err := graph.AddChatModelNode("ChatModel", chatModel); err != nil {
		return nil, fmt.Errorf("add ChatModel node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "BuildMessages"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("BuildMessages", "ChatModel"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("ChatModel", compose.END); err != nil {
		return nil, err
	}

	runnable, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile %s graph: %w", name, err)
	}
	g.runnable = runnable
	return g, nil
}

func (g *EinoGenerator) buildMessages(_ context.Context, parts []Part) ([]*schema.Message, error) {
	return []*schema.Message{
		schema.SystemMessage(g.prompts.SystemInstruction),
		{Role: schema.User, MultiContent: einoParts(parts)},
	}, nil
}

func (g *EinoGenerator) Generate(ctx context.Context, prompt string, files []model.FileData) (*Stream, error) {
	parts, err := BuildRequest(prompt, files, g.prompts.Fallback)
	if err != nil {
		return nil, unavailable(err)
	}

	stream, err := g.runnable.Stream(ctx, parts)
	if err != nil {
		return nil, unavailable(fmt.Errorf("%s stream: %w", g.name, err))
	}
	return stream, nil
}

func einoParts(parts []Part) []schema.ChatMessagePart {
	out := make([]schema.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch {
		case !p.IsFile():
			out = append(out, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text})
		case p.MimeType == "text/plain":
			out = append(out, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: string(p.Data)})
		default:
			out = append(out, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeFileURL,
				FileURL: &schema.ChatMessageFileURL{
					URL:      p.DataURL(),
					MIMEType: p.MimeType,
				},
			})
		}
	}
	return out
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.ChatModel, error) {
	logger.Infof("Using Doubao model: %s", cfg.Model)

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create doubao model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.ChatModel, error) {
	logger.Infof("Using Qwen model: %s, BaseURL: %s", cfg.Model, cfg.BaseURL)

	// 带调试功能的HTTPClient（基于配置）
	httpClient := utils.NewHTTPClient(cfg.Timeout,
		NewDebugTransport("qwen", utils.NewTransport(), cfg.DebugRequest))

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return chatModel, nil
}
