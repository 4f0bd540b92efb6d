// Package chunker splits extracted document text into segments for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultTargetSize is used when Split is given a non-positive size.
const DefaultTargetSize = 512

// Split greedily packs whitespace-delimited words into chunks of about targetSize
// characters. Each word counts its length plus one separator. A word longer than
// targetSize is kept whole in a chunk of its own.
//
// targetSize counts characters, not model tokens, so a chunk may tokenize to more
// or fewer tokens than its size suggests.
func Split(text string, targetSize int) []string {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}

	var (
		chunks  []string
		current []string
		size    int
	)
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		if size+n > targetSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			size = 0
		}
		current = append(current, word)
		size += n + 1
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// Chunker binds a target size for callers that pass the splitter around.
type Chunker struct {
	TargetSize int
}

func New(targetSize int) *Chunker {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	return &Chunker{TargetSize: targetSize}
}

func (c *Chunker) Split(text string) []string {
	return Split(text, c.TargetSize)
}
