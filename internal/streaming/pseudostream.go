// Package streaming implements the pseudo-streaming algorithm (§4.2): a
// completed LLM response is sliced into word-boundary-aware frames and
// emitted on a timer, emulating token-stream UX.
package streaming

import (
	"context"
	"time"
	"unicode"
)

// Chunk is one pseudo-stream frame.
type Chunk struct {
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	IsFinal    bool   `json:"is_final"`
}

// ShouldStream reports whether content is long enough to stream at all —
// §4.2: "Skip streaming entirely when |C| <= 2k".
func ShouldStream(content string, chunkSize int) bool {
	return chunkSize > 0 && len(content) > 2*chunkSize
}

// Slice splits content into chunks of target size chunkSize, expanding
// each slice's end to the next whitespace boundary when that extension is
// less than 40% larger than chunkSize (§4.2's pseudo-streaming algorithm).
func Slice(content string, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		return []Chunk{{Content: content, ChunkIndex: 0, IsFinal: true}}
	}

	runes := []rune(content)
	n := len(runes)
	var chunks []Chunk
	idx := 0
	pos := 0
	maxExtra := chunkSize * 4 / 10 // < 40% larger than chunkSize

	for pos < n {
		end := pos + chunkSize
		if end >= n {
			end = n
		} else {
			extended := end
			for extended < n && extended-end < maxExtra && !unicode.IsSpace(runes[extended]) {
				extended++
			}
			if extended < n && extended-end < maxExtra && unicode.IsSpace(runes[extended]) {
				end = extended
			}
			// else: extension would exceed the 40% budget or hit EOF
			// without finding whitespace; fall back to the hard cut.
		}

		chunks = append(chunks, Chunk{
			Content:    string(runes[pos:end]),
			ChunkIndex: idx,
		})
		idx++
		pos = end
	}

	if len(chunks) > 0 {
		chunks[len(chunks)-1].IsFinal = true
	}
	return chunks
}

// Emit drives Slice's output through emitFn at delay intervals, honoring
// ctx cancellation between frames.
func Emit(ctx context.Context, content string, chunkSize int, delay time.Duration, emitFn func(Chunk) error) error {
	chunks := Slice(content, chunkSize)
	for i, c := range chunks {
		if err := emitFn(c); err != nil {
			return err
		}
		if i == len(chunks)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}
