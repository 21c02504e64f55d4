// Package chunk splits outbound text so every piece fits the upstream
// per-message limit. Lengths are counted in characters (runes), not bytes.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/prose/v3"
)

// Kind names the content carried by a chunk and appears in its label.
type Kind string

const (
	Text    Kind = "TEXT"
	Code    Kind = "CODE"
	Encoded Kind = "ENCODED"
	Direct  Kind = "DIRECT"
)

// DefaultMaxLen is the upstream per-message limit.
const DefaultMaxLen = 450

// Len returns the length of s in characters.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Label prefixes a chunk with its kind and 1-based position,
// e.g. "[TEXT_CHUNK 2/3] ...".
func Label(kind Kind, i, n int, chunk string) string {
	return fmt.Sprintf("[%s_CHUNK %d/%d] %s", kind, i, n, chunk)
}

// Labeled splits text for kind and labels every piece. The label length is
// reserved inside maxLen, so each returned string fits the limit.
func Labeled(kind Kind, text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	n := 1
	var pieces []string
	// The label width depends on the chunk count; settle it in a few passes.
	for pass := 0; pass < 4; pass++ {
		room := maxLen - Len(Label(kind, n, n, ""))
		if room < 1 {
			room = 1
		}
		pieces = splitFor(kind, text, room)
		if len(pieces) == n {
			break
		}
		n = len(pieces)
	}
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = Label(kind, i+1, len(pieces), p)
	}
	return out
}

func splitFor(kind Kind, text string, maxLen int) []string {
	switch kind {
	case Code:
		return Lines(text, maxLen)
	case Encoded:
		return Fixed(text, maxLen)
	default:
		return Sentences(text, maxLen)
	}
}

// Sentences packs whole sentences into pieces of at most maxLen characters.
// Pieces are cut from text as-is, so joining them gives back text exactly,
// line breaks included. A sentence longer than maxLen is broken at a newline
// or space.
func Sentences(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if Len(text) <= maxLen {
		return []string{text}
	}

	spans := segment(text)
	if len(spans) == 0 {
		return cut(text, maxLen, true)
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, s := range spans {
		sl := Len(s)
		switch {
		case sl > maxLen:
			flush()
			chunks = append(chunks, cut(s, maxLen, true)...)
		case curLen+sl <= maxLen:
			cur.WriteString(s)
			curLen += sl
		default:
			flush()
			cur.WriteString(s)
			curLen = sl
		}
	}
	flush()
	return chunks
}

// segment splits text at sentence starts. Each span carries the whitespace
// that follows its sentence, and the spans concatenate to text. It returns
// nil if segmentation fails.
func segment(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil
	}
	var starts []int
	pos := 0
	for _, s := range doc.Sentences() {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		i := strings.Index(text[pos:], t)
		if i < 0 {
			return nil
		}
		starts = append(starts, pos+i)
		pos += i + len(t)
	}
	if len(starts) == 0 {
		return nil
	}
	starts[0] = 0

	out := make([]string, len(starts))
	for i, st := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		out[i] = text[st:end]
	}
	return out
}

// Lines splits text into pieces of at most maxLen characters, breaking at the
// last newline (or failing that, space) in the second half of each piece.
// The separator at each break is dropped.
func Lines(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return cut(text, maxLen, false)
}

// cut is Lines with a choice of keeping each break's separator at the end of
// the piece before it.
func cut(text string, maxLen int, keepSep bool) []string {
	r := []rune(text)
	if len(r) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(r) > 0 {
		if len(r) <= maxLen {
			chunks = append(chunks, string(r))
			break
		}

		breakAt := lastIndex(r[:maxLen], '\n', maxLen/2)
		if breakAt <= 0 {
			breakAt = lastIndex(r[:maxLen], ' ', maxLen/2)
		}

		switch {
		case breakAt > 0 && keepSep:
			chunks = append(chunks, string(r[:breakAt+1]))
			r = r[breakAt+1:]
		case breakAt > 0:
			chunks = append(chunks, string(r[:breakAt]))
			r = r[breakAt+1:] // skip the separator
		default:
			chunks = append(chunks, string(r[:maxLen]))
			r = r[maxLen:]
		}
	}
	return chunks
}

// lastIndex finds the last c in r at or after index min.
func lastIndex(r []rune, c rune, min int) int {
	for i := len(r) - 1; i >= min; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}

// Fixed cuts text into consecutive maxLen-character pieces.
func Fixed(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	r := []rune(text)
	if len(r) == 0 {
		return []string{""}
	}
	var chunks []string
	for i := 0; i < len(r); i += maxLen {
		end := i + maxLen
		if end > len(r) {
			end = len(r)
		}
		chunks = append(chunks, string(r[i:end]))
	}
	return chunks
}
