package conversation

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"gemdesign-backend/internal/model"

	"golang.org/x/sync/errgroup"
)

// EncodeFunc 把附件转换成可传输的文件载荷
type EncodeFunc func(ctx context.Context, a model.Attachment) (model.FileData, error)

func Base64Encode(ctx context.Context, a model.Attachment) (model.FileData, error) {
	if err := ctx.Err(); err != nil {
		return model.FileData{}, err
	}

	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(a.Content)))
	enc := base64.NewEncoder(base64.StdEncoding, &b)
	if _, err := enc.Write(a.Content); err != nil {
		return model.FileData{}, err
	}
	if err := enc.Close(); err != nil {
		return model.FileData{}, err
	}

	return model.FileData{Base64Data: b.String(), MimeType: a.MimeType}, nil
}

// EncodeAttachments 并发转换所有附件，任一失败则整体失败；结果顺序与输入一致
func EncodeAttachments(ctx context.Context, attachments []model.Attachment, encode EncodeFunc) ([]model.FileData, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if encode == nil {
		encode = Base64Encode
	}

	files := make([]model.FileData, len(attachments))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range attachments {
		g.Go(func() error {
			fd, err := encode(gctx, a)
			if err != nil {
				return fmt.Errorf("encode %s: %w", a.Name, err)
			}
			files[i] = fd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
