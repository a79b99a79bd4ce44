package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSentences(t *testing.T) {
	t.Parallel()

	got := Sentences("Hello world!  How are you?\nFine. version 1.2 stays whole")
	require.Equal(t, []string{"Hello world!", "How are you?", "Fine.", "version 1.2 stays whole"}, got)
	require.Empty(t, Sentences("   "))
}

func TestSplit_TinySize(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"A.", "B.", "C."}, Split("A. B. C.", 2, 1))
}

func TestSplit_SeedsOverlap(t *testing.T) {
	t.Parallel()

	got := Split("One two. Three four. Five six.", 25, 12)
	require.Equal(t, []string{"One two. Three four.", "Three four. Five six."}, got)
}

func TestSplit_OverlongSentenceStandsAlone(t *testing.T) {
	t.Parallel()

	long := "This sentence is definitely longer than twenty."
	got := Split("Short one. "+long+" End.", 20, 5)
	require.Equal(t, []string{"Short one.", long, "End."}, got)
}

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()

	require.Nil(t, Split("", 64, 10))
	require.Nil(t, Split(" \n\t ", 64, 10))
}

func TestSplit_RespectsSizeBound(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(". ")
	}
	text := b.String()

	chunks := Split(text, DefaultSize, DefaultOverlap)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.NotEmpty(t, strings.TrimSpace(c))
		if utf8.RuneCountInString(c) > DefaultSize {
			require.Len(t, Sentences(c), 1, "only a lone sentence may exceed the size: %q", c)
		}
	}
	require.Equal(t, chunks, Split(text, DefaultSize, DefaultOverlap))
}

func TestSplit_CountsRunes(t *testing.T) {
	t.Parallel()

	got := Split("Ünïcödé. Ünïcödé.", 17, 0)
	require.Equal(t, []string{"Ünïcödé. Ünïcödé."}, got)
}

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := New(DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	require.Equal(t, []string{"Hi there."}, c.Split("Hi there."))

	_, err = New(0, 0)
	require.Error(t, err)
	_, err = New(10, 10)
	require.Error(t, err)
	_, err = New(10, -1)
	require.Error(t, err)
}
