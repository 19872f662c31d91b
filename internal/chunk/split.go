// Package chunk splits oversized note text into ordered, boundary-aware
// chunks for per-chunk extraction calls.
package chunk

import "strings"

// Split breaks text into ordered chunks of at most size bytes each. Inputs at
// or below threshold are returned as a single chunk. Break points are chosen
// by priority: the last paragraph break, then the last newline, then the last
// sentence terminator (". ", the period stays with its chunk), each accepted
// only at or past half the chunk size, and finally a hard cut at exactly
// size. Chunks are trimmed of surrounding whitespace; concatenating them
// (modulo the trimmed whitespace) reproduces the input.
func Split(text string, size, threshold int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= threshold || len(text) <= size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	rest := text
	for len(rest) > size {
		cut := breakPoint(rest, size)
		if c := strings.TrimSpace(rest[:cut]); c != "" {
			chunks = append(chunks, c)
		}
		rest = rest[cut:]
	}
	if c := strings.TrimSpace(rest); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// breakPoint returns the cut index for the next chunk of s, len(s) > size.
func breakPoint(s string, size int) int {
	window := s[:size]
	min := size / 2

	if i := strings.LastIndex(window, "\n\n"); i >= min {
		return i + 2
	}
	if i := strings.LastIndex(window, "\n"); i >= min {
		return i + 1
	}
	if i := strings.LastIndex(window, ". "); i >= min {
		return i + 1
	}
	return size
}
