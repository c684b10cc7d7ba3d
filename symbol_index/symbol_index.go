// Package symbol_index maps identifier text to a coarse symbol kind.
//
// An Index is produced by a Builder during one parse and never changes
// afterwards, so any number of goroutines may call Lookup without locking.
package symbol_index

import "strings"

// Kind is the coarse classification a highlighter needs.
type Kind uint8

const (
	KindNone Kind = iota
	KindTypeName
	KindFunctionName
	KindMacroName
)

func (k Kind) String() string {
	switch k {
	case KindTypeName:
		return "type-name"
	case KindFunctionName:
		return "function-name"
	case KindMacroName:
		return "macro-name"
	default:
		return "none"
	}
}

type wordID uint32

// Builder collects classifications. It is not safe for concurrent use.
type Builder struct {
	words []string
	kinds []Kind
	index map[string]wordID
}

func NewBuilder() *Builder {
	return &Builder{index: make(map[string]wordID)}
}

// Insert records kind for word unless word is empty or already present.
// It reports whether the word was added.
func (b *Builder) Insert(word string, kind Kind) bool {
	if word == "" || kind == KindNone {
		return false
	}
	if _, ok := b.index[word]; ok {
		return false
	}
	// own copy so the index never pins a source buffer
	w := strings.Clone(word)
	b.index[w] = wordID(len(b.words))
	b.words = append(b.words, w)
	b.kinds = append(b.kinds, kind)
	return true
}

func (b *Builder) Len() int {
	return len(b.words)
}

// Build hands the collected entries to an immutable Index. The builder must
// not be used afterwards.
func (b *Builder) Build() *Index {
	idx := &Index{words: b.words, kinds: b.kinds, index: b.index}
	b.words, b.kinds, b.index = nil, nil, nil
	return idx
}

// Index is the read-only result of a Builder.
type Index struct {
	words []string
	kinds []Kind
	index map[string]wordID
}

// Lookup returns the kind recorded for word.
func (i *Index) Lookup(word string) (Kind, bool) {
	if i == nil {
		return KindNone, false
	}
	id, ok := i.index[word]
	if !ok {
		return KindNone, false
	}
	return i.kinds[id], true
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.words)
}

// Each visits entries in insertion order until fn returns false.
func (i *Index) Each(fn func(word string, kind Kind) bool) {
	if i == nil {
		return
	}
	for id, w := range i.words {
		if !fn(w, i.kinds[id]) {
			return
		}
	}
}
