package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// ExtractCodeBlock returns the body and info-string language of the first
// fenced code block in src. ok is false when src has no fenced block.
func ExtractCodeBlock(src string) (body, lang string, ok bool) {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, isFenced := n.(*ast.FencedCodeBlock)
		if !isFenced {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		body = strings.TrimRight(b.String(), "\n")
		lang = string(block.Language(source))
		ok = true
		return ast.WalkStop, nil
	})
	return body, lang, ok
}

// CodeBlockOrText returns the first fenced code block in src, or src itself.
func CodeBlockOrText(src string) string {
	if body, _, ok := ExtractCodeBlock(src); ok {
		return body
	}
	return src
}

// DecodeJSON unmarshals model output into v. Output that is not valid JSON
// is passed through jsonrepair once before giving up.
func DecodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	repaired, rerr := jsonrepair.JSONRepair(raw)
	if rerr != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("invalid json after repair: %w", err)
	}
	return nil
}
