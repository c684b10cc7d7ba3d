package symbol_index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_FirstClassificationWins(t *testing.T) {
	b := NewBuilder()
	assert.True(t, b.Insert("Foo", KindTypeName))
	assert.False(t, b.Insert("Foo", KindFunctionName))

	idx := b.Build()
	kind, ok := idx.Lookup("Foo")
	require.True(t, ok)
	assert.Equal(t, KindTypeName, kind)
	assert.Equal(t, 1, idx.Len())
}

func TestBuilder_IgnoresEmptyWords(t *testing.T) {
	b := NewBuilder()
	assert.False(t, b.Insert("", KindMacroName))
	assert.False(t, b.Insert("x", KindNone))
	assert.Equal(t, 0, b.Build().Len())
}

func TestIndex_LookupMissing(t *testing.T) {
	idx := NewBuilder().Build()
	kind, ok := idx.Lookup("nothing")
	assert.False(t, ok)
	assert.Equal(t, KindNone, kind)

	var nilIndex *Index
	_, ok = nilIndex.Lookup("nothing")
	assert.False(t, ok)
}

func TestIndex_EachKeepsInsertionOrder(t *testing.T) {
	b := NewBuilder()
	b.Insert("size_t", KindTypeName)
	b.Insert("main", KindFunctionName)
	b.Insert("MAX", KindMacroName)

	var got []string
	b.Build().Each(func(word string, kind Kind) bool {
		got = append(got, word+":"+kind.String())
		return true
	})
	assert.Equal(t, []string{"size_t:type-name", "main:function-name", "MAX:macro-name"}, got)
}

func TestIndex_ConcurrentLookups(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 500; i++ {
		b.Insert(fmt.Sprintf("fn_%d", i), KindFunctionName)
	}
	idx := b.Build()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				kind, ok := idx.Lookup(fmt.Sprintf("fn_%d", i))
				assert.True(t, ok)
				assert.Equal(t, KindFunctionName, kind)
			}
		}()
	}
	wg.Wait()
}
