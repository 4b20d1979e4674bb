package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gemdesign-backend/internal/generation"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/pkg/logger"

	"github.com/google/uuid"
)

const DefaultErrorTTL = 5 * time.Second

const greetingID = "greeting"

type Options struct {
	ID     string
	Texts  Texts
	Limits Limits
	// lastError 未被覆盖时的显示时长，<=0 表示不自动清除
	ErrorTTL time.Duration
	Encode   EncodeFunc
}

// Controller 单个会话的状态机：idle -> generating -> idle。
// 同一时刻最多一个生成请求；每次生成分配递增的 requestID，
// 被 Reset 取代的请求后续到达的片段、完成或失败都会被丢弃。
type Controller struct {
	id       string
	gen      generation.Generator
	texts    Texts
	limits   Limits
	errorTTL time.Duration
	encode   EncodeFunc
	greeting model.Message

	mu           sync.Mutex
	history      []model.Message
	pendingInput string
	pending      []model.Attachment
	phase        model.Phase
	requestID    uint64
	cancel       context.CancelFunc
	reply        strings.Builder
	lastError    string
	errorSeq     uint64
	errorTimer   *time.Timer
	subs         map[*Subscription]struct{}
	closed       bool
}

// Generation 一次已被接受的提交
type Generation struct {
	ID   uint64
	done chan struct{}
}

// Done 生成结束（完成、失败或被取代）后关闭
func (g *Generation) Done() <-chan struct{} {
	return g.done
}

func (g *Generation) Wait() {
	<-g.done
}

func New(gen generation.Generator, opts Options) *Controller {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Texts.Greeting == "" {
		opts.Texts = TextsFor("vi")
	}
	if opts.Limits.MaxBytes <= 0 {
		opts.Limits.MaxBytes = DefaultMaxAttachmentBytes
	}
	if len(opts.Limits.AllowedTypes) == 0 {
		opts.Limits.AllowedTypes = DefaultAllowedTypes
	}
	if opts.Encode == nil {
		opts.Encode = Base64Encode
	}

	c := &Controller{
		id:       opts.ID,
		gen:      gen,
		texts:    opts.Texts,
		limits:   opts.Limits,
		errorTTL: opts.ErrorTTL,
		encode:   opts.Encode,
		greeting: model.Message{
			ID:      greetingID,
			Role:    model.RoleAssistant,
			Content: opts.Texts.Greeting,
		},
		phase: model.PhaseIdle,
		subs:  make(map[*Subscription]struct{}),
	}
	c.history = []model.Message{c.greeting}
	return c
}

func (c *Controller) ID() string {
	return c.id
}

// Subscribe 调用方负责 Close
func (c *Controller) Subscribe() *Subscription {
	s := newSubscription(func(s *Subscription) {
		c.mu.Lock()
		delete(c.subs, s)
		c.mu.Unlock()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.stop()
		return s
	}
	c.subs[s] = struct{}{}
	return s
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingInput = text
}

// Submit 提交并等待本次生成结束；被忽略时返回 false
func (c *Controller) Submit(ctx context.Context, prompt string, attachments []model.Attachment) bool {
	g, ok := c.Start(ctx, prompt, attachments)
	if !ok {
		return false
	}
	g.Wait()
	return true
}

// SubmitPending 使用暂存的输入与附件提交并等待结束
func (c *Controller) SubmitPending(ctx context.Context) bool {
	g, ok := c.StartPending(ctx)
	if !ok {
		return false
	}
	g.Wait()
	return true
}

// Start 文本为空且无附件、或正在生成时忽略；否则追加用户消息并在后台开始生成
func (c *Controller) Start(ctx context.Context, prompt string, attachments []model.Attachment) (*Generation, bool) {
	c.mu.Lock()
	g, run := c.startLocked(ctx, prompt, attachments)
	c.mu.Unlock()

	if g == nil {
		return nil, false
	}
	go func() {
		defer close(g.done)
		run()
	}()
	return g, true
}

// StartPending 使用暂存的输入与附件提交
func (c *Controller) StartPending(ctx context.Context) (*Generation, bool) {
	c.mu.Lock()
	g, run := c.startLocked(ctx, c.pendingInput, c.pending)
	c.mu.Unlock()

	if g == nil {
		return nil, false
	}
	go func() {
		defer close(g.done)
		run()
	}()
	return g, true
}

func (c *Controller) startLocked(ctx context.Context, prompt string, attachments []model.Attachment) (*Generation, func()) {
	trimmed := strings.TrimSpace(prompt)
	if c.closed || c.phase == model.PhaseGenerating || (trimmed == "" && len(attachments) == 0) {
		return nil, nil
	}

	atts := append([]model.Attachment(nil), attachments...)
	c.requestID++
	id := c.requestID
	runCtx, cancel := context.WithCancel(ctx)

	msg := newMessage(model.RoleUser, userMessageContent(c.texts.AttachedLabel, trimmed, atts))
	c.history = append(c.history, msg)

	hadAttachments := len(c.pending) > 0
	c.pendingInput = ""
	c.pending = nil
	c.clearErrorLocked()
	c.phase = model.PhaseGenerating
	c.cancel = cancel
	c.reply.Reset()

	c.publishLocked(model.Event{Type: model.EventUserMessage, RequestID: id, Index: len(c.history) - 1, Message: &msg})
	if hadAttachments {
		c.publishLocked(model.Event{Type: model.EventAttachmentsChanged, RequestID: id, Index: -1})
	}

	return &Generation{ID: id, done: make(chan struct{})}, func() {
		c.run(runCtx, id, trimmed, atts)
	}
}

func (c *Controller) run(ctx context.Context, id uint64, prompt string, attachments []model.Attachment) {
	log := logger.WithFields(map[string]interface{}{
		"conversation_id": c.id,
		"request_id":      id,
	})
	log.Infof("generation started with %d attachment(s)", len(attachments))

	files, err := EncodeAttachments(ctx, attachments, c.encode)
	if err != nil {
		log.WithError(err).Warn("attachment encoding failed")
		c.fail(id, err)
		return
	}

	stream, err := c.gen.Generate(ctx, prompt, files)
	if err != nil {
		log.WithError(err).Warn("generation request failed")
		c.fail(id, err)
		return
	}
	defer stream.Close()

	index, ok := c.beginReply(id)
	if !ok {
		log.Info("generation superseded before reply started")
		return
	}

	chunks := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if c.complete(id) {
				log.Infof("generation completed after %d chunk(s)", chunks)
			}
			return
		}
		if err != nil {
			log.WithError(err).Warnf("stream failed after %d chunk(s)", chunks)
			c.fail(id, err)
			return
		}
		if chunk == nil {
			continue
		}
		if !c.appendChunk(id, index, chunk.Content) {
			log.Info("generation superseded, discarding remaining chunks")
			return
		}
		chunks++
	}
}

// currentLocked 判断 id 是否仍是正在进行的请求
func (c *Controller) currentLocked(id uint64) bool {
	return !c.closed && c.phase == model.PhaseGenerating && c.requestID == id
}

func (c *Controller) beginReply(id uint64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return 0, false
	}

	msg := newMessage(model.RoleAssistant, "")
	c.history = append(c.history, msg)
	index := len(c.history) - 1
	c.publishLocked(model.Event{Type: model.EventReplyStarted, RequestID: id, Index: index, Message: &msg})
	return index, true
}

func (c *Controller) appendChunk(id uint64, index int, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return false
	}

	c.reply.WriteString(text)
	c.history[index].Content = c.reply.String()
	c.publishLocked(model.Event{Type: model.EventChunk, RequestID: id, Index: index, Chunk: text})
	return true
}

func (c *Controller) complete(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return false
	}

	c.finishLocked()
	index := len(c.history) - 1
	msg := c.history[index]
	c.publishLocked(model.Event{Type: model.EventCompleted, RequestID: id, Index: index, Message: &msg})
	return true
}

// fail 部分回复保留原样，错误作为新的助手消息追加
func (c *Controller) fail(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(id) {
		return
	}

	text := c.texts.FailurePrefix + c.describe(err)
	c.setErrorLocked(text)
	msg := newMessage(model.RoleAssistant, text)
	c.history = append(c.history, msg)
	c.finishLocked()
	c.publishLocked(model.Event{Type: model.EventFailed, RequestID: id, Index: len(c.history) - 1, Message: &msg, Error: text})
}

func (c *Controller) finishLocked() {
	c.phase = model.PhaseIdle
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.reply.Reset()
}

func (c *Controller) describe(err error) string {
	if errors.Is(err, generation.ErrServiceUnavailable) {
		return c.texts.ServiceUnavailable
	}
	return err.Error()
}

// SelectAttachments 一批文件要么全部加入，要么一个都不加入
func (c *Controller) SelectAttachments(batch []model.Attachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	for _, a := range batch {
		if err := c.limits.Validate(a); err != nil {
			c.setErrorLocked(c.validationText(err))
			return err
		}
	}

	c.pending = mergeAttachments(c.pending, batch)
	c.clearErrorLocked()
	c.publishLocked(model.Event{Type: model.EventAttachmentsChanged, RequestID: c.requestID, Index: -1})
	return nil
}

func (c *Controller) validationText(err error) string {
	if errors.Is(err, ErrFileTooLarge) {
		return fmt.Sprintf(c.texts.FileTooLarge, c.limits.MaxBytes/(1024*1024))
	}
	return c.texts.UnsupportedType
}

// RemoveAttachment 越界时不改变任何状态
func (c *Controller) RemoveAttachment(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.pending) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	pending := make([]model.Attachment, 0, len(c.pending)-1)
	pending = append(pending, c.pending[:index]...)
	c.pending = append(pending, c.pending[index+1:]...)
	c.publishLocked(model.Event{Type: model.EventAttachmentsChanged, RequestID: c.requestID, Index: -1})
	return nil
}

// Reset 恢复到只有问候语的状态，并中止正在进行的生成
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == model.PhaseGenerating {
		c.requestID++
	}
	c.finishLocked()
	c.history = []model.Message{c.greeting}
	c.pendingInput = ""
	c.pending = nil
	c.lastError = ""
	c.errorSeq++
	c.stopErrorTimerLocked()
	c.publishLocked(model.Event{Type: model.EventReset, RequestID: c.requestID, Index: -1})
}

// Close 中止生成并关闭所有订阅，之后的提交都会被忽略
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.phase = model.PhaseIdle
	c.stopErrorTimerLocked()
	for s := range c.subs {
		s.stop()
	}
	c.subs = nil
}

func (c *Controller) Snapshot() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return model.State{
		ConversationID:     c.id,
		History:            append([]model.Message(nil), c.history...),
		PendingInput:       c.pendingInput,
		PendingAttachments: attachmentInfos(c.pending),
		Phase:              c.phase,
		IsGenerating:       c.phase == model.PhaseGenerating,
		LastError:          c.lastError,
		RequestID:          c.requestID,
	}
}

// Message 返回 history 中指定位置的消息
func (c *Controller) Message(index int) (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.history) {
		return model.Message{}, false
	}
	return c.history[index], true
}

// setErrorLocked 每次设置都重新计时，计时器只清除它对应的那条错误
func (c *Controller) setErrorLocked(text string) {
	c.lastError = text
	c.errorSeq++
	seq := c.errorSeq
	c.stopErrorTimerLocked()
	if c.errorTTL > 0 {
		c.errorTimer = time.AfterFunc(c.errorTTL, func() { c.expireError(seq) })
	}
	c.publishLocked(model.Event{Type: model.EventError, RequestID: c.requestID, Index: -1, Error: text})
}

func (c *Controller) clearErrorLocked() {
	if c.lastError == "" {
		return
	}
	c.lastError = ""
	c.errorSeq++
	c.stopErrorTimerLocked()
	c.publishLocked(model.Event{Type: model.EventErrorCleared, RequestID: c.requestID, Index: -1})
}

func (c *Controller) expireError(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.errorSeq != seq || c.lastError == "" {
		return
	}
	c.lastError = ""
	c.errorTimer = nil
	c.publishLocked(model.Event{Type: model.EventErrorCleared, RequestID: c.requestID, Index: -1})
}

func (c *Controller) stopErrorTimerLocked() {
	if c.errorTimer != nil {
		c.errorTimer.Stop()
		c.errorTimer = nil
	}
}

func (c *Controller) publishLocked(ev model.Event) {
	for s := range c.subs {
		s.push(ev)
	}
}

func newMessage(role model.Role, content string) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
