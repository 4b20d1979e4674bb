package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/conversation"
	"gemdesign-backend/internal/generation"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/internal/render"
	"gemdesign-backend/internal/storage"
	"gemdesign-backend/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrSubmissionIgnored 输入为空或已有生成在进行
	ErrSubmissionIgnored = errors.New("submission ignored")
	// ErrConversationClosed 流式回复期间会话被删除或过期
	ErrConversationClosed = errors.New("conversation closed")
	ErrMessageNotFound    = errors.New("message not found")
)

type ChatService struct {
	storage   storage.Storage
	generator generation.Generator
	options   conversation.Options
}

func NewChatService(cfg *config.Config, gen generation.Generator, store storage.Storage) *ChatService {
	limits := conversation.DefaultLimits()
	if cfg.Conversation.MaxAttachmentBytes > 0 {
		limits.MaxBytes = cfg.Conversation.MaxAttachmentBytes
	}
	if len(cfg.Conversation.AllowedMimeTypes) > 0 {
		limits.AllowedTypes = cfg.Conversation.AllowedMimeTypes
	}

	return &ChatService{
		storage:   store,
		generator: gen,
		options: conversation.Options{
			Texts:    conversation.TextsFor(cfg.Conversation.Locale),
			Limits:   limits,
			ErrorTTL: cfg.Conversation.ErrorDisplay,
		},
	}
}

func (s *ChatService) Limits() conversation.Limits {
	return s.options.Limits
}

func (s *ChatService) CreateConversation() (*model.ConversationResponse, error) {
	opts := s.options
	opts.ID = uuid.New().String()

	ctrl := conversation.New(s.generator, opts)
	if err := s.storage.Save(opts.ID, ctrl); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	logger.Infof("conversation %s created (%d active)", opts.ID, s.storage.Count())

	return &model.ConversationResponse{
		ConversationID: opts.ID,
		State:          ctrl.Snapshot(),
	}, nil
}

func (s *ChatService) controller(id string) (*conversation.Controller, error) {
	ctrl, err := s.storage.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	return ctrl, nil
}

func (s *ChatService) GetConversation(id string) (model.State, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return model.State{}, err
	}
	return ctrl.Snapshot(), nil
}

func (s *ChatService) DeleteConversation(id string) error {
	if err := s.storage.Delete(id); err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}
	logger.Infof("conversation %s deleted", id)
	return nil
}

func (s *ChatService) SetInput(id, text string) (model.State, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return model.State{}, err
	}
	ctrl.SetInput(text)
	return ctrl.Snapshot(), nil
}

// SelectAttachments 校验失败时仍返回当前快照（含 lastError）
func (s *ChatService) SelectAttachments(id string, batch []model.Attachment) (model.State, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return model.State{}, err
	}
	err = ctrl.SelectAttachments(batch)
	return ctrl.Snapshot(), err
}

func (s *ChatService) RemoveAttachment(id string, index int) (model.State, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return model.State{}, err
	}
	err = ctrl.RemoveAttachment(index)
	return ctrl.Snapshot(), err
}

func (s *ChatService) Reset(id string) (model.State, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return model.State{}, err
	}
	ctrl.Reset()
	return ctrl.Snapshot(), nil
}

func (s *ChatService) RenderMessage(id string, index int) ([]render.Block, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return nil, err
	}
	msg, ok := ctrl.Message(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMessageNotFound, index)
	}
	return render.Tokenize(msg.Content), nil
}

// StreamSubmit 提交暂存的输入与附件，并把本次生成的事件转成流式响应。
// 生成本身不受 ctx 取消影响，ctx 只控制事件转发；重置或删除会话才会中止生成。
func (s *ChatService) StreamSubmit(ctx context.Context, id string, message *string) (<-chan model.StreamResponse, <-chan error, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return nil, nil, err
	}
	if message != nil {
		ctrl.SetInput(*message)
	}

	// 先订阅再提交，确保能收到 user_message
	sub := ctrl.Subscribe()
	g, ok := ctrl.StartPending(context.WithoutCancel(ctx))
	if !ok {
		sub.Close()
		return nil, nil, ErrSubmissionIgnored
	}

	respChan := make(chan model.StreamResponse, 16)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer sub.Close()

		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					errChan <- ErrConversationClosed
					return
				}
				if ev.Type == model.EventReset && ev.RequestID >= g.ID {
					// 本次生成已被重置取代
					s.send(ctx, respChan, toStreamResponse(id, g.ID, ev))
					return
				}
				if ev.RequestID != g.ID || !streamed(ev.Type) {
					continue
				}
				if !s.send(ctx, respChan, toStreamResponse(id, g.ID, ev)) {
					return
				}
				if ev.Terminal() {
					return
				}
			case <-ctx.Done():
				logger.Debugf("stream of conversation %s detached, generation %d continues", id, g.ID)
				return
			}
		}
	}()

	return respChan, errChan, nil
}

func (s *ChatService) send(ctx context.Context, ch chan<- model.StreamResponse, resp model.StreamResponse) bool {
	select {
	case ch <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *ChatService) Close() error {
	return s.storage.Close()
}

func streamed(t model.EventType) bool {
	switch t {
	case model.EventUserMessage, model.EventReplyStarted, model.EventChunk,
		model.EventCompleted, model.EventFailed:
		return true
	}
	return false
}

func toStreamResponse(id string, requestID uint64, ev model.Event) model.StreamResponse {
	resp := model.StreamResponse{
		ConversationID: id,
		RequestID:      requestID,
		Type:           ev.Type,
		Index:          ev.Index,
		Content:        ev.Chunk,
		Error:          ev.Error,
		Timestamp:      time.Now().Unix(),
	}
	if ev.Message != nil {
		resp.MessageID = ev.Message.ID
		resp.Role = ev.Message.Role
		if ev.Type != model.EventChunk {
			resp.Content = ev.Message.Content
		}
	}
	return resp
}
