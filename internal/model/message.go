package model

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Attachment 待发送的文件，随消息提交后即丢弃
type Attachment struct {
	Name     string `json:"name"`
	Content  []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

func (a Attachment) Size() int64 {
	return int64(len(a.Content))
}

// FileData 可直接放入请求的文件载荷
type FileData struct {
	Base64Data string `json:"base64_data"`
	MimeType   string `json:"mime_type"`
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
)

type AttachmentInfo struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// State 会话状态快照
type State struct {
	ConversationID     string           `json:"conversation_id"`
	History            []Message        `json:"history"`
	PendingInput       string           `json:"pending_input"`
	PendingAttachments []AttachmentInfo `json:"pending_attachments"`
	Phase              Phase            `json:"phase"`
	IsGenerating       bool             `json:"is_generating"`
	LastError          string           `json:"last_error,omitempty"`
	RequestID          uint64           `json:"request_id"`
}
