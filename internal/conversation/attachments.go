package conversation

import (
	"errors"
	"fmt"
	"strings"

	"gemdesign-backend/internal/model"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrIndexOutOfRange = errors.New("attachment index out of range")
)

const DefaultMaxAttachmentBytes int64 = 10 * 1024 * 1024

var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

type Limits struct {
	MaxBytes     int64
	AllowedTypes []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxBytes:     DefaultMaxAttachmentBytes,
		AllowedTypes: DefaultAllowedTypes,
	}
}

func (l Limits) Allowed(mimeType string) bool {
	for _, t := range l.AllowedTypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

func (l Limits) Validate(a model.Attachment) error {
	if !l.Allowed(a.MimeType) {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, a.Name, a.MimeType)
	}
	if a.Size() > l.MaxBytes {
		return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, a.Name, a.Size())
	}
	return nil
}

// mergeAttachments 按文件名去重，已暂存的同名文件保留，批内重复只取第一个
func mergeAttachments(pending, batch []model.Attachment) []model.Attachment {
	seen := make(map[string]struct{}, len(pending)+len(batch))
	for _, a := range pending {
		seen[a.Name] = struct{}{}
	}
	merged := append([]model.Attachment(nil), pending...)
	for _, a := range batch {
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		merged = append(merged, a)
	}
	return merged
}

// userMessageContent 标签行 + 每个文件一行，有文字时空一行后附上
func userMessageContent(label, prompt string, attachments []model.Attachment) string {
	if len(attachments) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(label)
	for _, a := range attachments {
		b.WriteString("\n- ")
		b.WriteString(a.Name)
	}
	if prompt != "" {
		b.WriteString("\n\n")
		b.WriteString(prompt)
	}
	return b.String()
}

func attachmentInfos(attachments []model.Attachment) []model.AttachmentInfo {
	infos := make([]model.AttachmentInfo, len(attachments))
	for i, a := range attachments {
		infos[i] = model.AttachmentInfo{Name: a.Name, MimeType: a.MimeType, Size: a.Size()}
	}
	return infos
}
