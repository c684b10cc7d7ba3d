package utils

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	lg "github.com/charmbracelet/lipgloss"

	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/symbol_index"
)

type SpanClass uint8

const (
	SpanPlain SpanClass = iota
	SpanKeyword
	SpanComment
	SpanString
	SpanTypeName
	SpanFunctionName
	SpanMacroName
)

// Span is a run of source text with one highlight class.
type Span struct {
	Text  string
	Class SpanClass
}

// Classifier resolves identifiers, normally backed by a symbol index.
type Classifier func(word string) (symbol_index.Kind, bool)

// ClassifySource lexes src with the chroma lexer for filename and tags
// identifiers through classify. Adjacent spans of one class are merged.
func ClassifySource(filename string, src []byte, classify Classifier) ([]Span, error) {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Get("c")
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to tokenise %s: %w", filename, err)
	}

	var spans []Span
	for token := iterator(); token != chroma.EOF; token = iterator() {
		class := tokenClass(token, classify)
		if n := len(spans); n > 0 && spans[n-1].Class == class {
			spans[n-1].Text += token.Value
			continue
		}
		spans = append(spans, Span{Text: token.Value, Class: class})
	}
	return spans, nil
}

func tokenClass(token chroma.Token, classify Classifier) SpanClass {
	switch {
	case token.Type == chroma.CommentPreproc, token.Type.InCategory(chroma.Keyword):
		return SpanKeyword
	case token.Type.InCategory(chroma.Comment):
		return SpanComment
	case token.Type.InSubCategory(chroma.LiteralString):
		return SpanString
	case token.Type.InCategory(chroma.Name) && classify != nil:
		kind, ok := classify(token.Value)
		if !ok {
			return SpanPlain
		}
		switch kind {
		case symbol_index.KindTypeName:
			return SpanTypeName
		case symbol_index.KindFunctionName:
			return SpanFunctionName
		case symbol_index.KindMacroName:
			return SpanMacroName
		}
	}
	return SpanPlain
}

func spanStyle(class SpanClass) *lg.Style {
	switch class {
	case SpanKeyword:
		return &lipgloss.Keyword
	case SpanComment:
		return &lipgloss.Comment
	case SpanString:
		return &lipgloss.String
	case SpanTypeName:
		return &lipgloss.TypeName
	case SpanFunctionName:
		return &lipgloss.FunctionName
	case SpanMacroName:
		return &lipgloss.MacroName
	}
	return nil
}

// RenderSpans writes spans styled line by line, so styles never straddle
// a newline.
func RenderSpans(w io.Writer, spans []Span) error {
	var b strings.Builder
	for _, span := range spans {
		style := spanStyle(span.Class)
		if style == nil {
			b.WriteString(span.Text)
			continue
		}
		lines := strings.Split(span.Text, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteByte('\n')
			}
			if line != "" {
				b.WriteString(style.Render(line))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// HighlightTheme renders src with a stock chroma theme, ignoring symbol
// kinds.
func HighlightTheme(w io.Writer, filename string, src []byte, theme string) error {
	lexer := lexers.Match(filename)
	language := "c"
	if lexer != nil {
		language = lexer.Config().Name
	}
	return quick.Highlight(w, string(src), language, "terminal256", theme)
}
