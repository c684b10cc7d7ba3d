package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWordStop(t *testing.T) {
	for _, r := range "(){}[]&*=\"' \t" {
		assert.True(t, IsWordStop(r), "%q should stop", r)
	}
	for _, r := range "_aZ09é" {
		assert.False(t, IsWordStop(r), "%q should not stop", r)
	}
}

func TestWordBefore(t *testing.T) {
	src := []byte("int main(void) {\n  foo_ba\n}")
	offset := OffsetForPosition(src, 1, 8)
	assert.Equal(t, "foo_ba", WordBefore(src, offset))

	assert.Equal(t, "", WordBefore(src, OffsetForPosition(src, 0, 9)))
	assert.Equal(t, "x", WordBefore([]byte("a=*x"), 4))
}

func TestOffsetForPosition_Clamps(t *testing.T) {
	src := []byte("ab\ncd")
	assert.Equal(t, 2, OffsetForPosition(src, 0, 10))
	assert.Equal(t, 5, OffsetForPosition(src, 1, 7))
	assert.Equal(t, 5, OffsetForPosition(src, 9, 0))
	assert.Equal(t, 4, OffsetForPosition(src, 1, 1))

	blank := []byte("a\n\nb")
	assert.Equal(t, 2, OffsetForPosition(blank, 1, 3))
	assert.Equal(t, 3, OffsetForPosition(blank, 2, 0))
}
