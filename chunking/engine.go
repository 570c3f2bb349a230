// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunking splits document text into token-bounded spans.
//
// The engine is pure and deterministic: identical input and configuration
// always produce identical boundaries, which keeps content-hashed chunk IDs
// stable across re-ingestion. Configuration problems surface at engine
// construction; Split itself cannot fail.
package chunking

import (
	"unicode/utf8"

	"github.com/poiesic/knowit/core"
)

// runesPerToken is the rune budget behind one approximate token.
// Token counts are estimated as (runes+3)/runesPerToken.
const runesPerToken = 4

// approxTokens estimates the token count of a span holding the given
// number of runes. Rounds up, so short spans over-count rather than
// long spans under-counting.
func approxTokens(runes int) int {
	return (runes + runesPerToken - 1) / runesPerToken
}

// Span is one chunk boundary decision over the source text. Start and End
// are byte offsets into the original string, so text[Start:End] == Text.
// When overlap is configured, Start reaches back into the previous span's
// tail; concatenating each span's bytes past the previous End reconstructs
// the source exactly.
type Span struct {
	Index  int    // 1-based position within the document
	Start  int    // byte offset of the first byte, overlap included
	End    int    // byte offset one past the last byte
	Text   string
	Tokens int // approximate token count of Text
}

// segment is a contiguous byte range of the source text with its rune count.
type segment struct {
	start int
	end   int
	runes int
}

// Engine turns document text into chunk spans using one immutable
// configuration. Safe for concurrent use.
type Engine struct {
	chunkTokenSize    int
	minChunkSizeChars int
	overlapRunes      int
	maxChunkCount     int
}

// NewEngine builds an engine from a processing configuration.
// Invalid configurations are rejected here, before any chunk is produced.
func NewEngine(config core.ProcessingConfig) (*Engine, error) {
	if err := core.ValidateProcessingConfig(&config); err != nil {
		return nil, err
	}
	return &Engine{
		chunkTokenSize:    config.ChunkTokenSize,
		minChunkSizeChars: config.MinChunkSizeChars,
		overlapRunes:      config.ChunkOverlap * runesPerToken,
		maxChunkCount:     config.MaxChunkCount,
	}, nil
}

// Split cuts text into ordered spans. Boundaries prefer paragraph breaks,
// then sentence ends, then hard rune-count cuts for unbroken runs longer
// than the chunk budget. A trailing fragment shorter than the configured
// minimum merges into its predecessor, so a short document yields exactly
// one span. When a maximum chunk count is configured, spans beyond it are
// dropped.
func (e *Engine) Split(text string) []Span {
	if text == "" {
		return nil
	}

	chunks := e.accumulate(e.segments(text))
	chunks = e.mergeTrailing(chunks)
	if e.maxChunkCount > 0 && len(chunks) > e.maxChunkCount {
		chunks = chunks[:e.maxChunkCount]
	}
	return e.spans(text, chunks)
}

// segments cuts the text into atomic pieces: paragraphs, then sentences,
// then hard cuts for any sentence larger than a whole chunk. Separator
// bytes always attach to the preceding piece so every byte of the source
// belongs to exactly one segment.
func (e *Engine) segments(text string) []segment {
	maxRunes := e.chunkTokenSize * runesPerToken

	var segs []segment
	for _, p := range splitParagraphs(text) {
		for _, s := range splitSentences(text, p) {
			s.runes = utf8.RuneCountInString(text[s.start:s.end])
			if s.runes > maxRunes {
				segs = append(segs, hardCut(text, s, maxRunes)...)
			} else {
				segs = append(segs, s)
			}
		}
	}
	return segs
}

// accumulate greedily packs segments into chunks of at most chunkTokenSize
// approximate tokens. A segment that would overflow a non-empty chunk
// starts the next one; hard-cut segments never exceed a whole chunk, so
// every segment fits an empty chunk.
func (e *Engine) accumulate(segs []segment) []segment {
	var chunks []segment
	var cur segment
	for _, seg := range segs {
		if cur.runes > 0 && approxTokens(cur.runes+seg.runes) > e.chunkTokenSize {
			chunks = append(chunks, cur)
			cur = seg
			continue
		}
		if cur.runes == 0 {
			cur.start = seg.start
		}
		cur.end = seg.end
		cur.runes += seg.runes
	}
	if cur.runes > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// mergeTrailing folds a final fragment shorter than minChunkSizeChars into
// the chunk before it. The merged chunk may exceed the token budget.
func (e *Engine) mergeTrailing(chunks []segment) []segment {
	if len(chunks) < 2 {
		return chunks
	}
	last := chunks[len(chunks)-1]
	if last.runes >= e.minChunkSizeChars {
		return chunks
	}
	prev := &chunks[len(chunks)-2]
	prev.end = last.end
	prev.runes += last.runes
	return chunks[:len(chunks)-1]
}

// spans materializes chunk ranges, extending each span after the first
// backwards by the configured overlap. The extension stops at the previous
// chunk's own start, so overlap never swallows a whole chunk.
func (e *Engine) spans(text string, chunks []segment) []Span {
	spans := make([]Span, len(chunks))
	for i, ch := range chunks {
		start := ch.start
		overlap := 0
		if i > 0 && e.overlapRunes > 0 {
			floor := chunks[i-1].start
			for overlap < e.overlapRunes && start > floor {
				_, size := utf8.DecodeLastRuneInString(text[:start])
				start -= size
				overlap++
			}
		}
		spans[i] = Span{
			Index:  i + 1,
			Start:  start,
			End:    ch.end,
			Text:   text[start:ch.end],
			Tokens: approxTokens(ch.runes + overlap),
		}
	}
	return spans
}

// splitParagraphs cuts the text at blank lines. A run of consecutive
// newlines belongs to the paragraph it terminates.
func splitParagraphs(text string) []segment {
	var segs []segment
	start := 0
	i := 0
	for i < len(text) {
		if text[i] == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			j := i
			for j < len(text) && text[j] == '\n' {
				j++
			}
			segs = append(segs, segment{start: start, end: j})
			start = j
			i = j
			continue
		}
		i++
	}
	if start < len(text) {
		segs = append(segs, segment{start: start, end: len(text)})
	}
	return segs
}

// splitSentences cuts a paragraph at sentence terminators ('.', '!', '?')
// followed by whitespace. The terminator run and the whitespace after it
// belong to the sentence they close. All boundary bytes are ASCII, so the
// byte-wise scan never splits a multi-byte rune.
func splitSentences(text string, p segment) []segment {
	var segs []segment
	start := p.start
	i := p.start
	for i < p.end {
		if !isTerminator(text[i]) {
			i++
			continue
		}
		j := i
		for j < p.end && isTerminator(text[j]) {
			j++
		}
		if j < p.end && isSpace(text[j]) {
			for j < p.end && isSpace(text[j]) {
				j++
			}
			segs = append(segs, segment{start: start, end: j})
			start = j
		}
		i = j
	}
	if start < p.end {
		segs = append(segs, segment{start: start, end: p.end})
	}
	return segs
}

// hardCut slices an oversized segment into pieces of at most maxRunes
// runes, cutting only at rune boundaries.
func hardCut(text string, s segment, maxRunes int) []segment {
	var segs []segment
	start := s.start
	runes := 0
	for i := s.start; i < s.end; {
		_, size := utf8.DecodeRuneInString(text[i:s.end])
		i += size
		runes++
		if runes == maxRunes {
			segs = append(segs, segment{start: start, end: i, runes: runes})
			start = i
			runes = 0
		}
	}
	if start < s.end {
		segs = append(segs, segment{start: start, end: s.end, runes: runes})
	}
	return segs
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
