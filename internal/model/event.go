package model

type EventType string

const (
	EventUserMessage        EventType = "user_message"
	EventReplyStarted       EventType = "reply_started"
	EventChunk              EventType = "chunk"
	EventCompleted          EventType = "completed"
	EventFailed             EventType = "failed"
	EventReset              EventType = "reset"
	EventError              EventType = "error"
	EventErrorCleared       EventType = "error_cleared"
	EventAttachmentsChanged EventType = "attachments_changed"
)

// Event 控制器状态变化通知，同一订阅者按发生顺序收到
type Event struct {
	Type      EventType `json:"type"`
	RequestID uint64    `json:"request_id"`
	// 受影响消息在 history 中的下标，无关时为 -1
	Index   int      `json:"index"`
	Message *Message `json:"message,omitempty"`
	Chunk   string   `json:"chunk,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Terminal 表示一次生成已经结束
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}
