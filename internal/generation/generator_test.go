package generation

import (
	"encoding/base64"
	"testing"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/model"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestBuildRequest(t *testing.T) {
	files := []model.FileData{
		{Base64Data: b64("%PDF"), MimeType: "application/pdf"},
		{Base64Data: b64("notes"), MimeType: "text/plain"},
	}

	parts, err := BuildRequest("make a bot", files, "fallback")
	require.NoError(t, err)
	require.Len(t, parts, 3)

	assert.True(t, parts[0].IsFile())
	assert.Equal(t, []byte("%PDF"), parts[0].Data)
	assert.Equal(t, "application/pdf", parts[0].MimeType)
	assert.Equal(t, "data:text/plain;base64,"+b64("notes"), parts[1].DataURL())
	assert.False(t, parts[2].IsFile())
	assert.Equal(t, "make a bot", parts[2].Text)
}

func TestBuildRequestUsesFallbackForBlankPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   "} {
		parts, err := BuildRequest(prompt, []model.FileData{{Base64Data: b64("x"), MimeType: "text/plain"}}, DefaultFallbackPrompt)
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, DefaultFallbackPrompt, parts[1].Text)
	}

	parts, err := BuildRequest("", nil, "fb")
	require.NoError(t, err)
	assert.Equal(t, []Part{{Text: "fb"}}, parts)
}

func TestBuildRequestRejectsBadFiles(t *testing.T) {
	_, err := BuildRequest("p", []model.FileData{{Base64Data: "!!!", MimeType: "text/plain"}}, "")
	assert.ErrorContains(t, err, "invalid base64")

	_, err = BuildRequest("p", []model.FileData{{Base64Data: b64("x")}}, "")
	assert.ErrorContains(t, err, "missing mime type")
}

func TestNewPrompts(t *testing.T) {
	p := NewPrompts(config.PromptConfig{})
	assert.Equal(t, DefaultPrompts(), p)

	p = NewPrompts(config.PromptConfig{SystemInstruction: "be brief", Fallback: "use the files"})
	assert.Equal(t, "be brief", p.SystemInstruction)
	assert.Equal(t, "use the files", p.Fallback)
}

func TestProviderParts(t *testing.T) {
	parts, err := BuildRequest("hi", []model.FileData{
		{Base64Data: b64("plain text"), MimeType: "text/plain"},
		{Base64Data: b64("%PDF"), MimeType: "application/pdf"},
	}, "")
	require.NoError(t, err)

	t.Run("eino", func(t *testing.T) {
		out := einoParts(parts)
		require.Len(t, out, 3)
		assert.Equal(t, "plain text", out[0].Text)
		require.NotNil(t, out[1].FileURL)
		assert.Equal(t, "application/pdf", out[1].FileURL.MIMEType)
		assert.Equal(t, "data:application/pdf;base64,"+b64("%PDF"), out[1].FileURL.URL)
		assert.Equal(t, "hi", out[2].Text)
	})

	t.Run("openai rejects binary files", func(t *testing.T) {
		_, err := openaiParts(parts)
		assert.ErrorIs(t, err, ErrUnsupportedAttachment)
	})

	t.Run("openai inlines text files", func(t *testing.T) {
		out, err := openaiParts(parts[:1])
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "plain text", out[0].Text)
	})
}

func TestGeminiParts(t *testing.T) {
	parts, err := BuildRequest("hi", []model.FileData{{Base64Data: b64("%PDF"), MimeType: "application/pdf"}}, "")
	require.NoError(t, err)

	out := geminiParts(parts)
	require.Len(t, out, 2)
	assert.Equal(t, "application/pdf", out[0].(genai.Blob).MIMEType)
	assert.Equal(t, []byte("%PDF"), out[0].(genai.Blob).Data)
	assert.Equal(t, genai.Text("hi"), out[1])
}
