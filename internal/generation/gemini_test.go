package generation

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"gemdesign-backend/internal/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type fakeIterator struct {
	responses []*genai.GenerateContentResponse
	err       error
}

func (f *fakeIterator) Next() (*genai.GenerateContentResponse, error) {
	if len(f.responses) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, iterator.Done
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content}},
	}
}

func drain(t *testing.T, s *Stream) ([]string, error) {
	t.Helper()
	defer s.Close()
	var chunks []string
	for {
		msg, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, msg.Content)
	}
}

func TestPumpGeminiStreamsText(t *testing.T) {
	var cancelled atomic.Bool
	it := &fakeIterator{responses: []*genai.GenerateContentResponse{
		textResponse("Hello ", "there"),
		{},
		textResponse("world"),
	}}

	stream, err := pumpGemini(it, func() { cancelled.Store(true) })
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello there", "world"}, chunks)
	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}

func TestPumpGeminiFirstResponseErrorIsUnavailable(t *testing.T) {
	cancelled := false
	it := &fakeIterator{err: errors.New("403 API key not valid")}

	stream, err := pumpGemini(it, func() { cancelled = true })
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorContains(t, err, "API key not valid")
	assert.True(t, cancelled)
}

func TestPumpGeminiLaterErrorTerminatesStream(t *testing.T) {
	it := &fakeIterator{
		responses: []*genai.GenerateContentResponse{textResponse("Partial")},
		err:       errors.New("stream reset"),
	}

	stream, err := pumpGemini(it, func() {})
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	assert.Equal(t, []string{"Partial"}, chunks)
	assert.ErrorContains(t, err, "stream reset")
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
}

func TestPumpGeminiEmptyStream(t *testing.T) {
	stream, err := pumpGemini(&fakeIterator{}, func() {})
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestResponseTextIgnoresNonText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))

	resp := textResponse("a")
	resp.Candidates[0].Content.Parts = append(resp.Candidates[0].Content.Parts, genai.Blob{MIMEType: "image/png"})
	assert.Equal(t, "a", responseText(resp))
}

func TestNewGeminiGeneratorRequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), config.GeminiConfig{Model: "gemini-2.5-flash"}, DefaultPrompts())
	assert.Error(t, err)
}
