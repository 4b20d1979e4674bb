package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Block
	}{
		{
			name: "plain line",
			in:   "hello",
			want: []Block{{Type: BlockLine, Inlines: []Inline{{Type: InlineText, Text: "hello"}}}},
		},
		{
			name: "bold in the middle",
			in:   "a **b** c",
			want: []Block{{Type: BlockLine, Inlines: []Inline{
				{Type: InlineText, Text: "a "},
				{Type: InlineStrong, Text: "b"},
				{Type: InlineText, Text: " c"},
			}}},
		},
		{
			name: "indented list item",
			in:   "  - **Tên:** Bot",
			want: []Block{{Type: BlockListItem, Inlines: []Inline{
				{Type: InlineStrong, Text: "Tên:"},
				{Type: InlineText, Text: " Bot"},
			}}},
		},
		{
			name: "dash without space is not a list",
			in:   "-x",
			want: []Block{{Type: BlockLine, Inlines: []Inline{{Type: InlineText, Text: "-x"}}}},
		},
		{
			name: "unclosed bold stays text",
			in:   "**open",
			want: []Block{{Type: BlockLine, Inlines: []Inline{{Type: InlineText, Text: "**open"}}}},
		},
		{
			name: "empty line kept",
			in:   "a\n\nb",
			want: []Block{
				{Type: BlockLine, Inlines: []Inline{{Type: InlineText, Text: "a"}}},
				{Type: BlockLine, Inlines: []Inline{}},
				{Type: BlockLine, Inlines: []Inline{{Type: InlineText, Text: "b"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestTokenizeBoldDoesNotSpanLines(t *testing.T) {
	blocks := Tokenize("**a\nb**")
	require.Len(t, blocks, 2)
	assert.Equal(t, []Inline{{Type: InlineText, Text: "**a"}}, blocks[0].Inlines)
	assert.Equal(t, []Inline{{Type: InlineText, Text: "b**"}}, blocks[1].Inlines)
}

func TestPlainText(t *testing.T) {
	in := "**Title**\n- one\n- **two**"
	assert.Equal(t, "Title\n- one\n- two", PlainText(Tokenize(in)))
}
