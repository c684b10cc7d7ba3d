package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meysamhadeli/unitcache/symbol_index"
)

func classOf(spans []Span, text string) (SpanClass, bool) {
	for _, s := range spans {
		if strings.TrimSpace(s.Text) == text {
			return s.Class, true
		}
	}
	return SpanPlain, false
}

func TestClassifySource_UsesSymbolKinds(t *testing.T) {
	b := symbol_index.NewBuilder()
	b.Insert("size_type", symbol_index.KindTypeName)
	b.Insert("helper", symbol_index.KindFunctionName)
	b.Insert("LIMIT", symbol_index.KindMacroName)
	idx := b.Build()

	src := []byte("size_type helper(size_type v) {\n\treturn v + LIMIT; /* done */\n}\n")
	spans, err := ClassifySource("main.c", src, idx.Lookup)
	require.NoError(t, err)

	var text strings.Builder
	for _, s := range spans {
		text.WriteString(s.Text)
	}
	assert.Equal(t, string(src), text.String())

	class, ok := classOf(spans, "helper")
	require.True(t, ok)
	assert.Equal(t, SpanFunctionName, class)
	class, _ = classOf(spans, "LIMIT")
	assert.Equal(t, SpanMacroName, class)
	class, _ = classOf(spans, "return")
	assert.Equal(t, SpanKeyword, class)
	class, _ = classOf(spans, "/* done */")
	assert.Equal(t, SpanComment, class)
}

func TestClassifySource_NilClassifier(t *testing.T) {
	spans, err := ClassifySource("x.c", []byte("int helper;\n"), nil)
	require.NoError(t, err)
	for _, s := range spans {
		assert.Contains(t, []SpanClass{SpanPlain, SpanKeyword}, s.Class, s.Text)
	}
}

func TestRenderSpans_PreservesText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSpans(&buf, []Span{
		{Text: "int ", Class: SpanKeyword},
		{Text: "x;\n", Class: SpanPlain},
	}))
	assert.Contains(t, buf.String(), "x;\n")
	assert.Contains(t, buf.String(), "int")
}
