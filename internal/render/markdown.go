package render

import (
	"regexp"
	"strings"
)

type BlockType string

const (
	BlockLine     BlockType = "line"
	BlockListItem BlockType = "list_item"
)

type InlineType string

const (
	InlineText   InlineType = "text"
	InlineStrong InlineType = "strong"
)

type Inline struct {
	Type InlineType `json:"type"`
	Text string     `json:"text"`
}

// Block 一行文本；空行保留为没有 inline 的 line
type Block struct {
	Type    BlockType `json:"type"`
	Inlines []Inline  `json:"inlines"`
}

var strongPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// Tokenize 只识别两种标记：以 "- " 开头的列表行和行内 **粗体**
func Tokenize(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		block := Block{Type: BlockLine}
		if trimmed := strings.TrimLeft(line, " \t"); strings.HasPrefix(trimmed, "- ") {
			block.Type = BlockListItem
			line = trimmed[2:]
		}
		block.Inlines = inlines(line)
		blocks = append(blocks, block)
	}
	return blocks
}

func inlines(line string) []Inline {
	out := []Inline{}
	pos := 0
	for _, m := range strongPattern.FindAllStringSubmatchIndex(line, -1) {
		if m[0] > pos {
			out = append(out, Inline{Type: InlineText, Text: line[pos:m[0]]})
		}
		out = append(out, Inline{Type: InlineStrong, Text: line[m[2]:m[3]]})
		pos = m[1]
	}
	if pos < len(line) {
		out = append(out, Inline{Type: InlineText, Text: line[pos:]})
	}
	return out
}

// PlainText 去掉标记后的文本，用于复制
func PlainText(blocks []Block) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		if block.Type == BlockListItem {
			b.WriteString("- ")
		}
		for _, in := range block.Inlines {
			b.WriteString(in.Text)
		}
	}
	return b.String()
}
