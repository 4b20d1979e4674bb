package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gemdesign-backend/internal/model"

	"github.com/cloudwego/eino/schema"
)

var (
	// ErrServiceUnavailable 在拿到流之前发生的任何失败都归到这一类
	ErrServiceUnavailable = errors.New("cannot reach generation service")
	// ErrUnsupportedAttachment 提供方无法接收该类型的文件
	ErrUnsupportedAttachment = errors.New("attachment type not supported by provider")
)

// Stream 单次、只能向前读取的文本块序列；Recv 返回 io.EOF 表示结束
type Stream = schema.StreamReader[*schema.Message]

// Generator 对接托管模型的流式生成接口
type Generator interface {
	Generate(ctx context.Context, prompt string, files []model.FileData) (*Stream, error)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

// Part 请求中的一个内容片段：文件或文本
type Part struct {
	Text     string
	MimeType string
	// 文件的原始字节与 base64 文本
	Data   []byte
	Base64 string
}

func (p Part) IsFile() bool {
	return p.MimeType != ""
}

// DataURL 以 data URL 形式表示文件，供 OpenAI 兼容接口使用
func (p Part) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Base64
}

// BuildRequest 每个文件一个片段，最后恰好一个文本片段
func BuildRequest(prompt string, files []model.FileData, fallback string) ([]Part, error) {
	parts := make([]Part, 0, len(files)+1)
	for i, f := range files {
		if f.MimeType == "" {
			return nil, fmt.Errorf("file %d: missing mime type", i)
		}
		data, err := base64.StdEncoding.DecodeString(f.Base64Data)
		if err != nil {
			return nil, fmt.Errorf("file %d: invalid base64 payload: %w", i, err)
		}
		parts = append(parts, Part{
			MimeType: f.MimeType,
			Data:     data,
			Base64:   f.Base64Data,
		})
	}

	text := prompt
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	parts = append(parts, Part{Text: text})

	return parts, nil
}
