// Package chunker splits cleaned text into overlapping, size-bounded segments
// sized for embedding.
//
// Text is split into sentences after '.', '!' or '?' followed by whitespace.
// Sentences are packed greedily into chunks of at most Size runes (sentences
// joined by single spaces). Each new chunk is seeded with trailing sentences of
// the previous one whose joined length is at most Overlap. A sentence longer
// than Size is never split and becomes a chunk of its own.
package chunker

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Defaults used by the ingestion pipeline.
const (
	DefaultSize    = 64
	DefaultOverlap = 10
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Chunker holds the chunk size and overlap, both measured in runes.
type Chunker struct {
	Size    int
	Overlap int
}

// New validates the parameters and returns a Chunker.
func New(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, errors.New("chunk size must be > 0")
	}
	if overlap < 0 || overlap >= size {
		return Chunker{}, errors.New("chunk overlap must be >= 0 and < size")
	}
	return Chunker{Size: size, Overlap: overlap}, nil
}

// Split chunks text using the configured size and overlap.
func (c Chunker) Split(text string) []string {
	return Split(text, c.Size, c.Overlap)
}

// Split returns the ordered chunks for text. Empty input yields nil.
func Split(text string, size, overlap int) []string {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		curLen  int
	)
	for _, sentence := range sentences {
		sLen := runeLen(sentence)
		if len(current) > 0 && curLen+1+sLen > size {
			chunks = appendChunk(chunks, current)
			current = overlapTail(current, overlap)
			curLen = joinedLen(current)
			for len(current) > 0 && curLen+1+sLen > size {
				current = current[1:]
				curLen = joinedLen(current)
			}
		}
		if len(current) > 0 {
			curLen++
		}
		current = append(current, sentence)
		curLen += sLen
	}
	return appendChunk(chunks, current)
}

// Sentences splits text after sentence punctuation followed by whitespace.
// Returned sentences are trimmed and never empty.
func Sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		out = appendSentence(out, text[start:loc[0]+1])
		start = loc[1]
	}
	return appendSentence(out, text[start:])
}

func appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

func appendChunk(chunks, sentences []string) []string {
	if len(sentences) == 0 {
		return chunks
	}
	chunk := strings.Join(sentences, " ")
	if strings.TrimSpace(chunk) == "" {
		return chunks
	}
	return append(chunks, chunk)
}

// overlapTail returns the longest suffix of sentences whose joined length fits in overlap.
func overlapTail(sentences []string, overlap int) []string {
	total := 0
	i := len(sentences)
	for i > 0 {
		add := runeLen(sentences[i-1])
		if i < len(sentences) {
			add++
		}
		if total+add > overlap {
			break
		}
		total += add
		i--
	}
	tail := make([]string, len(sentences)-i)
	copy(tail, sentences[i:])
	return tail
}

func joinedLen(sentences []string) int {
	if len(sentences) == 0 {
		return 0
	}
	n := len(sentences) - 1
	for _, s := range sentences {
		n += runeLen(s)
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
