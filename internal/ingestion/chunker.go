package ingestion

import "strings"

// Chunker splits extracted document text into overlapping passages sized
// for the embedding model. Overlap keeps meaning that straddles a window
// boundary retrievable from both sides.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split returns the ordered chunks of text. Empty input yields no chunks;
// whitespace-only windows are dropped.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + c.chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Break at a word boundary when one is available.
			if idx := strings.LastIndexByte(text[start:end], ' '); idx > 0 {
				end = start + idx
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}

		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}
