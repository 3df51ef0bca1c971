package rag_service

import "strings"

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 200
)

// Chunker splits normalized markdown text into content chunks. It prefers
// paragraph boundaries and falls back to a fixed window with overlap when a
// single paragraph exceeds the chunk size.
type Chunker struct {
	ChunkSize int
	Overlap   int
}

func NewChunker() *Chunker {
	return &Chunker{
		ChunkSize: defaultChunkSize,
		Overlap:   defaultChunkOverlap,
	}
}

// Chunk splits text into chunks, each carrying the document metadata.
// Whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string, docMetadata map[string]interface{}) []Chunk {
	size := c.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	var current strings.Builder

	flush := func() {
		content := strings.TrimSpace(current.String())
		current.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Text: content, Metadata: docMetadata})
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		// Oversized paragraph: emit what we have, then window through it.
		if len(paragraph) > size {
			flush()
			for start := 0; start < len(paragraph); start += size - overlap {
				end := start + size
				if end > len(paragraph) {
					end = len(paragraph)
				}
				piece := strings.TrimSpace(paragraph[start:end])
				if piece != "" {
					chunks = append(chunks, Chunk{Text: piece, Metadata: docMetadata})
				}
				if end == len(paragraph) {
					break
				}
			}
			continue
		}

		if current.Len() > 0 && current.Len()+len(paragraph)+2 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}
